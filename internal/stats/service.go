// Package stats keeps the site-wide view counter.
package stats

import (
	"context"
	"errors"
	"fmt"

	"progportal/internal/docstore"
)

const (
	// Collection holds the single counter document.
	Collection = "sitestats"
	siteID     = "site"
	fieldViews = "totalViews"
)

type Service struct {
	store docstore.Collection
}

func NewService(store docstore.Collection) *Service {
	return &Service{store: store}
}

type siteStats struct {
	TotalViews int64 `json:"totalViews"`
}

// TotalViews reports the counter, or zero before the first view.
func (s *Service) TotalViews(ctx context.Context) (int64, error) {
	doc, err := s.store.FindByID(ctx, siteID)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load site stats: %w", err)
	}
	var st siteStats
	if err := docstore.Decode(doc.Fields, &st); err != nil {
		return 0, err
	}
	return st.TotalViews, nil
}

// RecordView atomically increments the counter, creating it on first use.
func (s *Service) RecordView(ctx context.Context) (int64, error) {
	n, err := s.store.Increment(ctx, siteID, fieldViews, 1)
	if err != nil {
		return 0, fmt.Errorf("increment site views: %w", err)
	}
	return n, nil
}
