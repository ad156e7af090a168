package datastore

import (
	"context"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/history"
)

// NoneStore is used when history is disabled. Every query is empty.
type NoneStore struct{}

var _ history.Backend = NoneStore{}

func (NoneStore) Name() string { return conf.BackendNone }

func (NoneStore) RecentCropPredictions(context.Context, int) ([]history.CropPredictionRecord, error) {
	return nil, nil
}

func (NoneStore) RecentDiseasePredictions(context.Context, int) ([]history.DiseasePredictionRecord, error) {
	return nil, nil
}

func (NoneStore) Close() error { return nil }
