// Package repo 实现库存预留数据访问层，负责与数据库的交互。
package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer 抽象 *sql.DB 与 *sql.Tx 的公共执行接口
// 仓储方法在事务内外均可使用同一套SQL实现。
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// TxManager 管理一次业务调用的事务边界
// reserve/confirm/release 的全部写入必须落在同一个事务中，
// 任何一步失败时整体回滚，调用方看不到部分写入。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// sqlTxManager 基于 database/sql 的事务管理实现
type sqlTxManager struct {
	db *sql.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *sql.DB) TxManager {
	return &sqlTxManager{db: db}
}

// WithinTx 在单个数据库事务中执行fn，fn返回错误则回滚
func (m *sqlTxManager) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
