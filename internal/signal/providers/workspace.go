package providers

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"gorm.io/gorm"
)

// WorkspaceSyncer mirrors workspace edit recency.
type WorkspaceSyncer struct {
	client *client
}

func NewWorkspaceSyncer(baseURL, token string, timeout time.Duration) (*WorkspaceSyncer, error) {
	c, err := newClient(signaldomain.ProviderWorkspace, baseURL, token, timeout)
	if err != nil {
		return nil, err
	}
	return &WorkspaceSyncer{client: c}, nil
}

func (s *WorkspaceSyncer) Provider() string { return signaldomain.ProviderWorkspace }

func (s *WorkspaceSyncer) MirrorTable() string {
	return signaldomain.WorkspaceActivity{}.TableName()
}

type workspaceActivityPayload struct {
	LastEditedAt *time.Time `json:"last_edited_at"`
	TotalEdits   int64      `json:"total_edits"`
}

func (s *WorkspaceSyncer) Sync(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time) error {
	var payload workspaceActivityPayload
	if err := s.client.getJSON(ctx, "/customers/"+customerID.String()+"/activity", &payload); err != nil {
		return err
	}

	values := map[string]any{
		"last_edited_at": payload.LastEditedAt,
		"total_edits":    payload.TotalEdits,
		"updated_at":     now,
	}
	result := db.WithContext(ctx).Model(&signaldomain.WorkspaceActivity{}).
		Where("customer_id = ?", customerID).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return db.WithContext(ctx).Create(&signaldomain.WorkspaceActivity{
			CustomerID:   customerID,
			LastEditedAt: payload.LastEditedAt,
			TotalEdits:   payload.TotalEdits,
			UpdatedAt:    now,
		}).Error
	}
	return nil
}
