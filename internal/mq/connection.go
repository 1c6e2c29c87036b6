// Package mq 提供RabbitMQ连接管理与预留事件的收发。
package mq

import (
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Connection 封装一条RabbitMQ连接
// 连接断开后在下一次 Channel 调用时惰性重连，不在后台维护连接。
type Connection struct {
	url    string
	logger *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// NewConnection 建立RabbitMQ连接
func NewConnection(url string, logger *zap.Logger) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Connection{url: url, logger: logger}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	c.conn = conn
	c.logger.Info("rabbitmq connected")
	return nil
}

// Channel 返回一个新通道，连接已断开时先重连
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connection is closed")
	}
	if c.conn == nil || c.conn.IsClosed() {
		c.logger.Warn("rabbitmq connection lost, reconnecting")
		if err := c.dial(); err != nil {
			return nil, err
		}
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// DeclareTopology 声明事件交换机（topic类型，持久化）
func (c *Connection) DeclareTopology(exchange string) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Close 关闭连接
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
