// Package hub 推送通道的连接注册表
//
// 维护 身份 -> 在线连接集合 的进程级映射：连接建立时登记、断开时摘除，
// 集合为空即删除整个条目，不留空集。支持同一身份的多个并发连接（多设备）。
// 注册表只做定向查找，不关心对账流程；多实例部署时可用共享存储实现
// 替换本实现，调用点不变。
package hub

import (
	"sync"
)

// Conn 推送连接的抽象，gorilla/websocket 的 *Conn 天然满足
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// guardedConn 串行化单条连接上的写入
// gorilla 连接只允许一个并发写入者，违反会直接 panic；
// 多个对账同时扇出到同一连接时由这把锁排队
type guardedConn struct {
	mu   sync.Mutex
	conn Conn
}

func (g *guardedConn) WriteJSON(v interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn.WriteJSON(v)
}

func (g *guardedConn) Close() error {
	return g.conn.Close()
}

// entry 单个身份的在线状态，以原始连接为键，同一连接始终复用同一把写锁
type entry struct {
	role  string
	conns map[Conn]*guardedConn
}

// Registry 连接注册表，所有操作并发安全
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry 创建连接注册表
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register 登记一条已通过身份校验的连接
// 未经校验的连接不允许到达这里，拒绝发生在握手阶段
func (r *Registry) Register(identityID, role string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[identityID]
	if !ok {
		e = &entry{
			role:  role,
			conns: make(map[Conn]*guardedConn),
		}
		r.entries[identityID] = e
	}
	e.role = role
	e.conns[conn] = &guardedConn{conn: conn}
}

// Remove 摘除连接，身份名下无连接时删除条目
func (r *Registry) Remove(identityID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[identityID]
	if !ok {
		return
	}
	delete(e.conns, conn)
	if len(e.conns) == 0 {
		delete(r.entries, identityID)
	}
}

// ConnectionsFor 某身份当前的全部在线连接，写入已按连接串行化
func (r *Registry) ConnectionsFor(identityID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[identityID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(e.conns))
	for _, g := range e.conns {
		conns = append(conns, g)
	}
	return conns
}

// AdminBroadcastGroup 管理员广播组：所有管理员身份名下的连接
func (r *Registry) AdminBroadcastGroup() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Conn
	for _, e := range r.entries {
		if e.role != "admin" {
			continue
		}
		for _, g := range e.conns {
			conns = append(conns, g)
		}
	}
	return conns
}

// Count 某身份的在线连接数
func (r *Registry) Count(identityID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[identityID]
	if !ok {
		return 0
	}
	return len(e.conns)
}

// CloseAll 服务关闭时断开所有连接并清空注册表
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		for conn := range e.conns {
			_ = conn.Close()
		}
		delete(r.entries, id)
	}
}
