package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/mediastore"
	"github.com/xxxsen/journiv/internal/model"
)

type MediaService struct {
	stores *Stores
	engine *mediastore.Engine
}

func NewMediaService(stores *Stores, engine *mediastore.Engine) *MediaService {
	return &MediaService{stores: stores, engine: engine}
}

func (s *MediaService) Get(ctx context.Context, userID, mediaID string) (*model.EntryMedia, error) {
	return s.stores.Media.Get(ctx, userID, mediaID)
}

// Delete removes one attachment record. The physical file goes away only
// with the last record that points at it. The returned flag reports whether
// the file was unlinked.
func (s *MediaService) Delete(ctx context.Context, userID, mediaID string) (bool, error) {
	m, err := s.stores.Media.Get(ctx, userID, mediaID)
	if err != nil {
		return false, err
	}
	if err := s.stores.Media.Delete(ctx, userID, mediaID); err != nil {
		return false, err
	}
	if m.FilePath == "" {
		return false, nil
	}
	removed, err := s.engine.Delete(ctx, mediastore.DeleteRequest{
		RelativePath: m.FilePath,
		Checksum:     m.Checksum,
		OwnerID:      userID,
	})
	if err != nil {
		// The record is gone already; a leftover file is only wasted space.
		logutil.GetLogger(ctx).Error("delete media file failed",
			zap.String("media_id", mediaID), zap.String("path", m.FilePath), zap.Error(err))
		return false, fmt.Errorf("delete media file: %w", err)
	}
	return removed, nil
}
