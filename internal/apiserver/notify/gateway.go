// Package notify WebSocket 实时通知网关
//
// 订阅事件总线，把与当前用户相关的领域事件（申请提交、审核、撤回、房源出租、账号状态变更）
// 推送给已登录的客户端。admin / staff 接收全部事件。
package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/apiserver/httputil"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// maxBacklog 连接时可回放的最近事件上限
	maxBacklog = 50
)

// upgrader WebSocket 升级器配置
//
// 浏览器无法为 WebSocket 握手设置 Authorization 头，令牌通过查询参数传递，
// 因此不依赖 Origin 做访问控制。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message 推送消息
//
//	{"type": "connected", "data": {"userId": "..."}}
//	{"type": "event", "data": {...}}
//	{"type": "pong"}
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Gateway WebSocket 通知网关
type Gateway struct {
	events  eventbus.EventBus
	authn   *auth.Authenticator
	clients map[*websocket.Conn]*model.User
	mu      sync.RWMutex
}

// NewGateway 创建通知网关
func NewGateway(events eventbus.EventBus, authn *auth.Authenticator) *Gateway {
	return &Gateway{
		events:  events,
		authn:   authn,
		clients: make(map[*websocket.Conn]*model.User),
	}
}

// RegisterRoutes 注册路由
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/notifications", g.HandleWebSocket)
}

// ClientCount 当前连接数
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/notifications?token=<access token>
//
// 查询参数：
//   - token: 访问令牌（也接受 Authorization 头）
//   - recent: 连接后回放最近 N 条相关事件（可选，最多 50）
//
// 令牌校验在握手前完成，失败时返回普通 401 响应。
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		httputil.Error(w, http.StatusUnauthorized, "Not authorized, no token")
		return
	}
	user, err := g.authn.Resolve(r.Context(), token)
	if err != nil {
		httputil.FromError(w, "notify", err)
		return
	}
	if g.events == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "Notifications are not available")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 先订阅再升级，握手完成后发布的事件不会丢失
	eventCh, err := g.events.Subscribe(ctx)
	if err != nil {
		log.Printf("[notify] subscribe error: %v", err)
		httputil.Error(w, http.StatusServiceUnavailable, "Notifications are not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[notify] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	g.addClient(conn, user)
	defer g.removeClient(conn)
	log.Printf("[notify] client connected: user=%s", user.ID)

	pongs := make(chan struct{}, 1)
	go g.readPump(conn, cancel, pongs)

	if err := g.write(conn, Message{Type: "connected", Data: map[string]string{"userId": user.ID}}); err != nil {
		return
	}
	if n, _ := strconv.Atoi(r.URL.Query().Get("recent")); n > 0 {
		if err := g.replay(ctx, conn, user, min(n, maxBacklog)); err != nil {
			return
		}
	}
	g.writePump(ctx, conn, user, eventCh, pongs)
}

// Visible 事件是否推送给该用户
func Visible(e *eventbus.Event, user *model.User) bool {
	return user.IsStaff() || e.VisibleTo(user.ID)
}

func (g *Gateway) addClient(conn *websocket.Conn, user *model.User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[conn] = user
}

func (g *Gateway) removeClient(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, conn)
}

// readPump 读取客户端消息
//
// 连接只允许一个写入方，ping 的应答经 pongs 交给 writePump 发送。
func (g *Gateway) readPump(conn *websocket.Conn, cancel context.CancelFunc, pongs chan<- struct{}) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[notify] read error: %v", err)
			}
			return
		}
		var req Message
		if json.Unmarshal(msg, &req) == nil && req.Type == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

// writePump 向客户端推送事件并定时发送 ping
func (g *Gateway) writePump(ctx context.Context, conn *websocket.Conn, user *model.User, eventCh <-chan *eventbus.Event, pongs <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-pongs:
			if err := g.write(conn, Message{Type: "pong"}); err != nil {
				return
			}
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if !Visible(event, user) {
				continue
			}
			if err := g.write(conn, Message{Type: "event", Data: event}); err != nil {
				log.Printf("[notify] write error: %v", err)
				return
			}
		}
	}
}

// replay 按时间正序回放最近的相关事件
func (g *Gateway) replay(ctx context.Context, conn *websocket.Conn, user *model.User, n int) error {
	events, err := g.events.Recent(ctx, int64(n))
	if err != nil {
		log.Printf("[notify] recent events error: %v", err)
		return nil
	}
	for i := len(events) - 1; i >= 0; i-- {
		if !Visible(events[i], user) {
			continue
		}
		if err := g.write(conn, Message{Type: "event", Data: events[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && http.CanonicalHeaderKey(h[:6]) == "Bearer" {
		return h[len(prefix):]
	}
	return ""
}
