// Package domain 定义库存预留相关的业务领域模型和核心业务规则。
package domain

import "errors"

// 预留引擎的业务错误集合。
// 前三个属于业务可预期错误（调用方可重试或降级提示），
// 后两个表示内部一致性被破坏，必须作为严重事故记录。
var (
	// ErrInsufficientStock 可用库存不足，无法完成预留
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrLotReservationConflict 批次预留时与并发请求冲突（规划与提交之间批次被消耗）
	ErrLotReservationConflict = errors.New("lot reservation conflict")

	// ErrStockItemNotFound 变体没有对应的库存记录（配置问题）
	ErrStockItemNotFound = errors.New("stock item not found")

	// ErrLotConfirmFailed 批次确认失败，预留不变量在上游被破坏
	ErrLotConfirmFailed = errors.New("lot confirm failed")

	// ErrReservationConfirmFailed 库存确认失败，预留状态已损坏
	ErrReservationConfirmFailed = errors.New("reservation confirm failed")
)
