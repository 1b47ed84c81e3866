package model

import (
    "go.mongodb.org/mongo-driver/bson/primitive"
)

// PatientFields is the fixed field set of a patient record.  Every value
// is an opaque string exactly as submitted; nothing is coerced or checked.
// The residence key keeps its historical capitalisation so existing
// documents stay readable.
type PatientFields struct {
    PatientID       string `bson:"id" form:"id"`
    Gender          string `bson:"gender" form:"gender"`
    Age             string `bson:"age" form:"age"`
    Hypertension    string `bson:"hypertension" form:"hypertension"`
    HeartDisease    string `bson:"heart_disease" form:"heart_disease"`
    EverMarried     string `bson:"ever_married" form:"ever_married"`
    WorkType        string `bson:"work_type" form:"work_type"`
    ResidenceType   string `bson:"Residence_type" form:"Residence_type"`
    AvgGlucoseLevel string `bson:"avg_glucose_level" form:"avg_glucose_level"`
    BMI             string `bson:"bmi" form:"bmi"`
    SmokingStatus   string `bson:"smoking_status" form:"smoking_status"`
}

// Patient is a stored record: the field set plus the store-generated ID.
type Patient struct {
    ID            primitive.ObjectID `bson:"_id,omitempty"`
    PatientFields `bson:",inline"`
}

// Hex returns the store identifier as used in URLs.
func (p Patient) Hex() string { return p.ID.Hex() }

// PatientFormKeys lists the form inputs read for a record, in display order.
var PatientFormKeys = []string{
    "id", "gender", "age", "hypertension", "heart_disease", "ever_married",
    "work_type", "Residence_type", "avg_glucose_level", "bmi", "smoking_status",
}

// PatientFieldsFromForm builds a PatientFields from submitted form values.
// Missing inputs become empty strings.
func PatientFieldsFromForm(get func(key string) string) PatientFields {
    return PatientFields{
        PatientID:       get("id"),
        Gender:          get("gender"),
        Age:             get("age"),
        Hypertension:    get("hypertension"),
        HeartDisease:    get("heart_disease"),
        EverMarried:     get("ever_married"),
        WorkType:        get("work_type"),
        ResidenceType:   get("Residence_type"),
        AvgGlucoseLevel: get("avg_glucose_level"),
        BMI:             get("bmi"),
        SmokingStatus:   get("smoking_status"),
    }
}

// Map returns the fields keyed by their form names.
func (f PatientFields) Map() map[string]string {
    return map[string]string{
        "id":                f.PatientID,
        "gender":            f.Gender,
        "age":               f.Age,
        "hypertension":      f.Hypertension,
        "heart_disease":     f.HeartDisease,
        "ever_married":      f.EverMarried,
        "work_type":         f.WorkType,
        "Residence_type":    f.ResidenceType,
        "avg_glucose_level": f.AvgGlucoseLevel,
        "bmi":               f.BMI,
        "smoking_status":    f.SmokingStatus,
    }
}
