package po

import "time"

// RenderJobPO 渲染任务持久化对象
type RenderJobPO struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID            string    `gorm:"uniqueIndex;size:36;not null" json:"job_id"`
	TenantID         string    `gorm:"index:idx_tenant_env;size:64;not null" json:"tenant_id"`
	Env              string    `gorm:"index:idx_tenant_env;size:32" json:"env"`
	UserID           string    `gorm:"index;size:64" json:"user_id"`
	ProjectID        string    `gorm:"index;size:64;not null" json:"project_id"`
	Profile          string    `gorm:"size:64;not null" json:"profile"`
	JobType          string    `gorm:"index;size:16;not null" json:"job_type"`
	Status           string    `gorm:"index;size:16;not null" json:"status"`
	Progress         int       `gorm:"default:0" json:"progress"`
	RenderCacheKey   string    `gorm:"index:idx_cache_key;size:80;not null" json:"render_cache_key"`
	RequestJSON      string    `gorm:"type:text" json:"request_json"`
	PlanSnapshot     string    `gorm:"type:text" json:"plan_snapshot"`
	PlanPinned       bool      `gorm:"default:false" json:"plan_pinned"`
	ResultAssetID    string    `gorm:"size:64" json:"result_asset_id"`
	ResultArtifactID string    `gorm:"size:64" json:"result_artifact_id"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message"`
	SegmentIndex     *int      `json:"segment_index"`
	SegmentStartMs   *int64    `json:"segment_start_ms"`
	SegmentEndMs     *int64    `json:"segment_end_ms"`
	OverlapMs        int64     `gorm:"default:0" json:"overlap_ms"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName 指定表名
func (RenderJobPO) TableName() string {
	return "video_render_jobs"
}
