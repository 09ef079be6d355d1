package resumestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"

	"job-portal-go/internal/logger"
)

var (
	// ErrCreateDir 最终目录创建失败
	ErrCreateDir = errors.New("create upload directory failed")
	// ErrWriteFile 简历内容写入失败
	ErrWriteFile = errors.New("write resume file failed")
)

// Local 本地文件系统后端
// 简历最终位于 {publicRoot}/uploads/resumes/ 下，可由静态文件服务直接对外提供
type Local struct {
	publicRoot string
	stagingDir string
}

// 确保Local实现了Store接口
var _ Store = (*Local)(nil)

// NewLocal 创建本地文件系统后端
func NewLocal(publicRoot, stagingDir string) (*Local, error) {
	if publicRoot == "" {
		return nil, fmt.Errorf("公共目录不能为空")
	}
	if stagingDir == "" {
		stagingDir = filepath.Join(publicRoot, ".staging")
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建暂存目录失败: %w", err)
	}
	return &Local{publicRoot: publicRoot, stagingDir: stagingDir}, nil
}

// Stage 将简历写入暂存目录下的唯一命名文件
func (l *Local) Stage(ctx context.Context, r io.Reader) (Staged, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成暂存文件名失败: %w", err)
	}
	stagingPath := filepath.Join(l.stagingDir, id.String()+".pdf")

	f, err := os.Create(stagingPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(stagingPath)
		return nil, fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(stagingPath)
		return nil, fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	return &localStaged{store: l, stagingPath: stagingPath}, nil
}

type localStaged struct {
	store       *Local
	stagingPath string
}

// Commit 创建最终目录并把暂存文件改名到最终路径
// 目录创建失败与文件移动失败作为不同错误返回，便于上层区分报错
func (s *localStaged) Commit(ctx context.Context, finalKey string) error {
	finalPath := filepath.Join(s.store.publicRoot, filepath.FromSlash(finalKey))
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrCreateDir, err)
	}
	if err := os.Rename(s.stagingPath, finalPath); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	return nil
}

// Discard 删除暂存文件，删除失败只记日志
func (s *localStaged) Discard(ctx context.Context) {
	if err := os.Remove(s.stagingPath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", s.stagingPath).Msg("清理暂存简历失败")
	}
}
