package offline

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnectionClosed = errors.New("websocket connection is closed")

// wsConn 封装gorilla/websocket的连接实现
type wsConn struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex // 写操作互斥锁
	closed   int32      // 0=open, 1=closed
	readWait time.Duration
}

// newWSConn 每收到 pong 或消息都把读超时顺延 readWait
func newWSConn(conn *websocket.Conn, readWait time.Duration) *wsConn {
	w := &wsConn{conn: conn, readWait: readWait}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.readWait))
	})
	return w
}

func (w *wsConn) ReadMessage() (messageType int, p []byte, err error) {
	if atomic.LoadInt32(&w.closed) == 1 {
		return 0, nil, ErrConnectionClosed
	}

	w.conn.SetReadDeadline(time.Now().Add(w.readWait))

	messageType, p, err = w.conn.ReadMessage()
	if err != nil {
		atomic.StoreInt32(&w.closed, 1)
		return 0, nil, err
	}
	return messageType, p, nil
}

func (w *wsConn) WriteMessage(messageType int, data []byte) error {
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrConnectionClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// 双重检查，防止在获取锁的过程中连接被关闭
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrConnectionClosed
	}

	w.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := w.conn.WriteMessage(messageType, data); err != nil {
		atomic.StoreInt32(&w.closed, 1)
		return err
	}
	return nil
}

// Ping 发送心跳，页面的 pong 由 ReadMessage 所在协程处理
func (w *wsConn) Ping() error {
	return w.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsConn) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	// 尝试发送关闭帧（不强制要求成功）
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed")
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	w.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return w.conn.Close()
}

func (w *wsConn) IsClosed() bool {
	return atomic.LoadInt32(&w.closed) == 1
}
