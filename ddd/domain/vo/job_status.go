package vo

// JobStatus 渲染任务状态
type JobStatus string

const (
	// JobStatusQueued 已入队
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning 渲染中
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded 已成功
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed 失败
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled 已取消
	JobStatusCancelled JobStatus = "cancelled"
)

// NewJobStatusFromString 从字符串解析状态
func NewJobStatusFromString(s string) (JobStatus, bool) {
	st := JobStatus(s)
	return st, st.IsValid()
}

// IsValid 检查状态是否有效
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String 返回状态字符串
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal 检查是否为最终状态
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive 检查是否为活跃状态（参与并发背压统计）
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// CanTransitionTo 检查是否可以转换到目标状态
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return target == JobStatusRunning || target == JobStatusCancelled
	case JobStatusRunning:
		return target == JobStatusSucceeded || target == JobStatusFailed || target == JobStatusCancelled
	case JobStatusFailed, JobStatusCancelled:
		// resume把失败/取消的任务重新排队
		return target == JobStatusQueued
	case JobStatusSucceeded:
		return false
	default:
		return false
	}
}

// JobType 渲染任务类型
type JobType string

const (
	// JobTypeFull 整条时间线渲染
	JobTypeFull JobType = "full"
	// JobTypeSegment 分段渲染
	JobTypeSegment JobType = "segment"
)

// IsValid 检查任务类型是否有效
func (t JobType) IsValid() bool {
	return t == JobTypeFull || t == JobTypeSegment
}

// String 返回类型字符串
func (t JobType) String() string {
	return string(t)
}
