package constants

import "time"

const (
	// JWTCookieName 求职者身份令牌所在的Cookie名称
	JWTCookieName = "job_jwt_token"

	// ApplicationStatusCategory 状态配置表中投递状态所属的类别名称
	ApplicationStatusCategory = "application_status"
	// DefaultApplicationStatus 状态配置表中查不到组织级默认值时的兜底状态
	DefaultApplicationStatus = "Applied"

	// ResumeDateLayout 简历文件名中的日期格式 (MM-DD-YYYY)
	ResumeDateLayout = "01-02-2006"
	// DateOnlyLayout 截止日期比较使用的日期格式 (YYYY-MM-DD)
	DateOnlyLayout = "2006-01-02"

	// StatusCacheDuration 投递状态查询结果的缓存时长
	StatusCacheDuration = 24 * time.Hour
)
