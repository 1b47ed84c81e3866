package handler

import (
    "context"
    "errors"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/patient-records/internal/middleware"
    "github.com/iliyamo/patient-records/internal/model"
    "github.com/iliyamo/patient-records/internal/repository"
)

// PatientManager is the record CRUD the patient pages drive.
type PatientManager interface {
    List(ctx context.Context) ([]model.Patient, error)
    Create(ctx context.Context, actor string, f model.PatientFields) (string, error)
    Get(ctx context.Context, id string) (*model.Patient, error)
    Update(ctx context.Context, actor, id string, f model.PatientFields) error
    Delete(ctx context.Context, actor, id string) error
}

// PatientHandler serves the patient list and edit pages.
type PatientHandler struct {
    Patients PatientManager
}

func NewPatientHandler(p PatientManager) *PatientHandler {
    return &PatientHandler{Patients: p}
}

type patientsView struct {
    Keys     []string
    Patients []model.Patient
}

type editView struct {
    ID     string
    Keys   []string
    Fields map[string]string
}

// List renders every record with the add form.
func (h *PatientHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ps, err := h.Patients.List(ctx)
    if err != nil {
        return err
    }
    return render(c, "patients.html", patientsView{Keys: model.PatientFormKeys, Patients: ps})
}

// Create stores the submitted fields verbatim.
func (h *PatientHandler) Create(c echo.Context) error {
    f := model.PatientFieldsFromForm(c.FormValue)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if _, err := h.Patients.Create(ctx, middleware.Actor(c), f); err != nil {
        return err
    }
    AddFlash(c, "success", "Patient record added successfully!")
    return redirect(c, "/patients")
}

// EditForm renders one record for editing.  An unknown id renders an
// empty form.
func (h *PatientHandler) EditForm(c echo.Context) error {
    id := c.Param("patient_id")

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    var fields model.PatientFields
    p, err := h.Patients.Get(ctx, id)
    switch {
    case err == nil:
        fields = p.PatientFields
    case errors.Is(err, repository.ErrNotFound):
    default:
        return err
    }
    return render(c, "edit_patient.html", editView{ID: id, Keys: model.PatientFormKeys, Fields: fields.Map()})
}

// Update replaces the record's whole field set.
func (h *PatientHandler) Update(c echo.Context) error {
    f := model.PatientFieldsFromForm(c.FormValue)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Patients.Update(ctx, middleware.Actor(c), c.Param("patient_id"), f); err != nil {
        return err
    }
    AddFlash(c, "success", "Patient record updated successfully!")
    return redirect(c, "/patients")
}

// Delete removes the record; an unknown id is not an error.
func (h *PatientHandler) Delete(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Patients.Delete(ctx, middleware.Actor(c), c.Param("patient_id")); err != nil {
        return err
    }
    AddFlash(c, "success", "Patient record deleted successfully!")
    return redirect(c, "/patients")
}
