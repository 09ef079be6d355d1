package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"job-portal-go/internal/config"
	"job-portal-go/internal/storage/models"
)

var mysqlTracer = otel.Tracer("job-portal-go/storage/mysql")

// ErrDuplicateApplication 候选人对同一岗位的重复投递
// 由 (jobid, candidate_id) 唯一索引在插入时触发
var ErrDuplicateApplication = errors.New("duplicate application")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// Registry 按租户库名管理GORM连接池
// 每个租户库独立建池，懒加载，进程内复用
type Registry struct {
	cfg   *config.MySQLConfig
	mu    sync.RWMutex
	pools map[string]*gorm.DB
}

// NewRegistry 创建多租户数据库注册表
func NewRegistry(cfg *config.MySQLConfig) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}
	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("MySQL配置未列出任何租户库")
	}
	return &Registry{
		cfg:   cfg,
		pools: make(map[string]*gorm.DB),
	}, nil
}

// Databases 返回配置中列出的所有租户库名
func (r *Registry) Databases() []string {
	out := make([]string, len(r.cfg.Databases))
	copy(out, r.cfg.Databases)
	return out
}

// Get 返回指定租户库的连接池，首次访问时建立连接并迁移表结构
func (r *Registry) Get(databaseName string) (*gorm.DB, error) {
	r.mu.RLock()
	db, ok := r.pools[databaseName]
	r.mu.RUnlock()
	if ok {
		return db, nil
	}

	if !r.knownDatabase(databaseName) {
		return nil, fmt.Errorf("未知的租户库: %s", databaseName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.pools[databaseName]; ok {
		return db, nil
	}

	db, err := r.open(databaseName)
	if err != nil {
		return nil, err
	}
	r.pools[databaseName] = db
	return db, nil
}

func (r *Registry) knownDatabase(databaseName string) bool {
	for _, name := range r.cfg.Databases {
		if name == databaseName {
			return true
		}
	}
	return false
}

// open 建立单个租户库的连接池
func (r *Registry) open(databaseName string) (*gorm.DB, error) {
	cfg := r.cfg

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, databaseName,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		// 让GORM把方言层的唯一键冲突翻译成 gorm.ErrDuplicatedKey，
		// 重复投递的判定依赖这一点
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL库 %s 失败: %w", databaseName, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	tracingPlugin := NewGormTracingPlugin(databaseName)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := autoMigrateSchema(db); err != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移库 %s 的表结构失败: %w", databaseName, err)
	}

	log.Printf("成功连接到MySQL库 %s 并自动迁移表结构", databaseName)
	return db, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func autoMigrateSchema(db *gorm.DB) error {
	// 迁移时关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	silentDB := db.Session(&gorm.Session{Logger: silentLogger})

	return silentDB.AutoMigrate(
		&models.ExternalJob{},
		&models.Application{},
		&models.GenericName{},
		&models.GenericValue{},
		&models.OrgSequence{},
		&models.OutboxMessage{},
	)
}

// Close 关闭注册表内所有连接池
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, db := range r.pools {
		sqlDB, err := db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("关闭库 %s 的连接池失败: %w", name, err)
		}
	}
	r.pools = make(map[string]*gorm.DB)
	return firstErr
}

// ListOpenJobs 列出指定租户库中对外开放的岗位
func (r *Registry) ListOpenJobs(ctx context.Context, databaseName string) ([]models.ExternalJob, error) {
	db, err := r.Get(databaseName)
	if err != nil {
		return nil, err
	}
	var jobs []models.ExternalJob
	if err := db.WithContext(ctx).
		Where("status = ?", "ACTIVE").
		Order("jobid").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}
	return jobs, nil
}

// HasApplication 检查候选人是否已投递过某岗位
func (r *Registry) HasApplication(ctx context.Context, databaseName string, jobID int, candidateID string) (bool, error) {
	db, err := r.Get(databaseName)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Application{}).
		Where("jobid = ? AND candidate_id = ?", jobID, candidateID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询投递记录失败: %w", err)
	}
	return count > 0, nil
}

// FindActiveGenericName 按名称查找启用中的字典类目
func (r *Registry) FindActiveGenericName(ctx context.Context, databaseName, name string) (*models.GenericName, error) {
	db, err := r.Get(databaseName)
	if err != nil {
		return nil, err
	}
	var gn models.GenericName
	err = db.WithContext(ctx).
		Where("name = ? AND isactive = ?", name, true).
		First(&gn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询字典类目失败: %w", err)
	}
	return &gn, nil
}

// FindDefaultGenericValue 查找组织在某字典类目下的默认取值
func (r *Registry) FindDefaultGenericValue(ctx context.Context, databaseName string, gnameID, orgID int) (*models.GenericValue, error) {
	db, err := r.Get(databaseName)
	if err != nil {
		return nil, err
	}
	var gv models.GenericValue
	err = db.WithContext(ctx).
		Where("gnameid = ? AND orgid = ? AND isactive = ? AND isdefault = ?", gnameID, orgID, true, true).
		First(&gv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询字典默认值失败: %w", err)
	}
	return &gv, nil
}
