// Package status 解析新投递应落入的初始状态。
//
// 状态取自通用字典: 名称维度查 "application_status" 类目，
// 取值维度查该组织的默认取值；任何一步失败或缺失都回退到内置默认值，
// 状态解析永远不会让一次投递失败。
package status

import (
	"context"
	"errors"

	"job-portal-go/internal/constants"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/storage/models"
)

// Dictionary 通用字典查询
type Dictionary interface {
	FindActiveGenericName(ctx context.Context, databaseName, name string) (*models.GenericName, error)
	FindDefaultGenericValue(ctx context.Context, databaseName string, gnameID, orgID int) (*models.GenericValue, error)
}

// Cache 组织默认状态缓存
type Cache interface {
	GetCachedStatus(ctx context.Context, databaseName string, orgID int) (string, error)
	SetCachedStatus(ctx context.Context, databaseName string, orgID int, status string) error
}

// Resolver 初始投递状态解析器
type Resolver struct {
	dict  Dictionary
	cache Cache // 可为nil，此时每次直查字典
}

// NewResolver 创建状态解析器
func NewResolver(dict Dictionary, cache Cache) *Resolver {
	return &Resolver{dict: dict, cache: cache}
}

// Resolve 返回组织的初始投递状态，永不返回错误
func (r *Resolver) Resolve(ctx context.Context, databaseName string, orgID int) string {
	if r.cache != nil {
		cached, err := r.cache.GetCachedStatus(ctx, databaseName, orgID)
		if err == nil && cached != "" {
			return cached
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Str("database", databaseName).Int("orgid", orgID).Msg("读取状态缓存失败，回源字典")
		}
	}

	resolved := r.resolveFromDictionary(ctx, databaseName, orgID)

	if r.cache != nil {
		if err := r.cache.SetCachedStatus(ctx, databaseName, orgID, resolved); err != nil {
			logger.Warn().Err(err).Str("database", databaseName).Int("orgid", orgID).Msg("写入状态缓存失败")
		}
	}
	return resolved
}

func (r *Resolver) resolveFromDictionary(ctx context.Context, databaseName string, orgID int) string {
	gn, err := r.dict.FindActiveGenericName(ctx, databaseName, constants.ApplicationStatusCategory)
	if err != nil {
		logger.Warn().Err(err).Str("database", databaseName).Msg("查询状态类目失败，使用内置默认状态")
		return constants.DefaultApplicationStatus
	}
	if gn == nil {
		return constants.DefaultApplicationStatus
	}

	gv, err := r.dict.FindDefaultGenericValue(ctx, databaseName, gn.GNameID, orgID)
	if err != nil {
		logger.Warn().Err(err).Str("database", databaseName).Int("orgid", orgID).Msg("查询组织默认状态失败，使用内置默认状态")
		return constants.DefaultApplicationStatus
	}
	if gv == nil || gv.Name == "" {
		return constants.DefaultApplicationStatus
	}
	return gv.Name
}
