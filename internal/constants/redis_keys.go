package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: portal:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "portal"

	// ApplyModulePrefix 投递模块
	ApplyModulePrefix = "apply"
	// StatusModulePrefix 状态配置模块
	StatusModulePrefix = "status"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityDefault 默认值实体
	EntityDefault = "default"
	// EntityLimit 限流计数实体
	EntityLimit = "limit"

	// KeyAppliedPairSet 已投递的 (岗位, 候选人) 去重集合 (SET)
	// 格式: portal:apply:dedup_set:{databaseName}
	KeyAppliedPairSet = AppPrefix + ":" + ApplyModulePrefix + ":" + EntityDedupSet + ":%s"

	// KeyStatusDefault 组织级投递状态默认值缓存 (STRING)
	// 格式: portal:status:default:{databaseName}:{orgid}
	KeyStatusDefault = AppPrefix + ":" + StatusModulePrefix + ":" + EntityDefault + ":%s:%d"

	// KeyApplyRateLimit 投递接口限流计数 (STRING)
	// 格式: portal:apply:limit:{candidateID}
	KeyApplyRateLimit = AppPrefix + ":" + ApplyModulePrefix + ":" + EntityLimit + ":%s"
)
