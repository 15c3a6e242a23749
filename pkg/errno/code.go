package errno

// code=0 请求成功
// code=4xx 客户端请求错误
// code=5xx 服务器端错误
// code=2xxxx 业务处理错误码

type Errno struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *Errno) Error() string {
	return e.Message
}

var (
	OK = &Errno{Code: 200, Message: "Success"}

	ErrParameterInvalid = &Errno{Code: 400, Message: "Invalid parameter %s"}
	ErrInvalidParam     = &Errno{Code: 400, Message: "Invalid parameter"}
	ErrUnauthorized     = &Errno{Code: 401, Message: "Unauthorized"}
	ErrNotFound         = &Errno{Code: 404, Message: "Not found"}

	ErrInternalServer = &Errno{Code: 500, Message: "Internal server error"}
	ErrDatabase       = &Errno{Code: 501, Message: "Database error"}
	ErrUnknown        = &Errno{Code: 510, Message: "Unknown error"}

	// 渲染计划错误码
	ErrProjectNotFound       = &Errno{Code: 21001, Message: "Project not found"}
	ErrSequenceNotFound      = &Errno{Code: 21002, Message: "Project has no sequence"}
	ErrUnknownFilterType     = &Errno{Code: 21003, Message: "Unknown filter type"}
	ErrUnknownTransitionType = &Errno{Code: 21004, Message: "Unknown transition type"}
	ErrInvalidTransition     = &Errno{Code: 21005, Message: "Transition duration must be positive"}
	ErrSourceMediaMissing    = &Errno{Code: 21006, Message: "Source media not available"}
	ErrUnknownProfile        = &Errno{Code: 21007, Message: "Unknown output profile"}
	ErrArtifactNotFound      = &Errno{Code: 21008, Message: "Referenced artifact not found"}

	// 渲染任务错误码
	ErrRenderJobNotFound   = &Errno{Code: 21101, Message: "Render job not found"}
	ErrInvalidJobStatus    = &Errno{Code: 21102, Message: "Invalid render job status transition"}
	ErrTooManyActiveJobs   = &Errno{Code: 21103, Message: "Too many active render jobs for tenant"}
	ErrJobNotResumable     = &Errno{Code: 21104, Message: "Render job is not in a resumable state"}
	ErrSegmentJobsRequired = &Errno{Code: 21105, Message: "Stitch requires succeeded segment jobs"}
	ErrTenantRequired      = &Errno{Code: 21106, Message: "Tenant ID is required"}
	ErrProjectRequired     = &Errno{Code: 21107, Message: "Project ID is required"}
	ErrJobIDRequired       = &Errno{Code: 21108, Message: "Job ID is required"}
	ErrCreateLockHeld      = &Errno{Code: 21109, Message: "Another submission for the same render is in progress"}
	ErrQueueFull           = &Errno{Code: 21110, Message: "Render job queue is full"}
	ErrInvalidWindow       = &Errno{Code: 21111, Message: "Invalid render time window"}
)

// BizError 业务错误，携带错误码和底层原因
type BizError struct {
	Errno *Errno
	Cause error
}

// NewBizError 包装业务错误
func NewBizError(errno *Errno, cause error) *BizError {
	return &BizError{Errno: errno, Cause: cause}
}

// Error 实现error接口
func (e *BizError) Error() string {
	if e.Cause != nil {
		return e.Errno.Message + ": " + e.Cause.Error()
	}
	return e.Errno.Message
}

// Unwrap 支持errors.Is/As
func (e *BizError) Unwrap() error {
	return e.Cause
}

// Is 允许errors.Is(err, errno.ErrXxx)
func (e *BizError) Is(target error) bool {
	return target == e.Errno
}
