package repository

// This file holds the record store: patient documents in MongoDB addressed
// by their generated ObjectID.

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/patient-records/internal/model"
)

// PatientRepo encapsulates all queries against the patients collection.
type PatientRepo struct {
	coll *mongo.Collection
}

func NewPatientRepo(coll *mongo.Collection) *PatientRepo {
	return &PatientRepo{coll: coll}
}

// parseID turns a URL identifier into an ObjectID.  Anything that is not a
// 24-char hex string cannot name a record, so it reports ErrNotFound.
func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

// Insert stores the fields verbatim and returns the generated identifier.
func (r *PatientRepo) Insert(ctx context.Context, f model.PatientFields) (string, error) {
	doc := model.Patient{ID: primitive.NewObjectID(), PatientFields: f}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert patient: %w", err)
	}
	return doc.ID.Hex(), nil
}

// Each streams every record in store order, stopping at the first error
// returned by fn.
func (r *PatientRepo) Each(ctx context.Context, fn func(model.Patient) error) error {
	cur, err := r.coll.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("find patients: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var p model.Patient
		if err := cur.Decode(&p); err != nil {
			return fmt.Errorf("decode patient: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return cur.Err()
}

// List collects every record in store order.
func (r *PatientRepo) List(ctx context.Context) ([]model.Patient, error) {
	out := []model.Patient{}
	err := r.Each(ctx, func(p model.Patient) error {
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one record by identifier.
func (r *PatientRepo) Get(ctx context.Context, id string) (*model.Patient, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var p model.Patient
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &p, nil
}

// Replace overwrites the whole field set of the matching record.  It
// reports whether a record matched; no match is not an error.
func (r *PatientRepo) Replace(ctx context.Context, id string, f model.PatientFields) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, nil
	}
	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: oid}}, f)
	if err != nil {
		return false, fmt.Errorf("replace patient: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// Delete removes the matching record and reports whether one existed.
func (r *PatientRepo) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, nil
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	return res.DeletedCount > 0, nil
}
