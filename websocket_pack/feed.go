package websocket_pack

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/globals"
	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/utils"

	"github.com/lxzan/gws"
)

const (
	pingInterval = 20 * time.Second
	pingWait     = 2 * pingInterval
	// Subscribers only listen; anything larger than a ping is noise.
	readMaxPayload = 4 * 1024
)

type feedMessage struct {
	Type         string                   `json:"type"`
	Version      string                   `json:"version,omitempty"`
	BlockHeight  uint64                   `json:"blockHeight,omitempty"`
	Metrics      *structures.Metrics      `json:"metrics,omitempty"`
	Transactions []structures.Transaction `json:"transactions,omitempty"`
	Blocks       []structures.Block       `json:"blocks,omitempty"`
}

// Feed pushes every refresh that brought in new transactions to all
// connected websocket subscribers.
type Feed struct {
	gws.BuiltinEventHandler

	upgrader *gws.Upgrader

	mu       sync.RWMutex
	sessions map[*gws.Conn]struct{}
}

func NewFeed() *Feed {

	feed := &Feed{sessions: make(map[*gws.Conn]struct{})}

	feed.upgrader = gws.NewUpgrader(feed, &gws.ServerOption{
		ReadMaxPayloadSize: readMaxPayload,
		PermessageDeflate:  gws.PermessageDeflate{Enabled: true},
	})

	return feed
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	socket, err := f.upgrader.Upgrade(w, r)
	if err != nil {
		utils.LogWithTime(fmt.Sprintf("Websocket upgrade failed: %v", err), utils.DEEP_GRAY)
		return
	}

	go socket.ReadLoop()
}

func (f *Feed) OnOpen(socket *gws.Conn) {

	_ = socket.SetDeadline(time.Now().Add(pingWait))

	f.mu.Lock()
	f.sessions[socket] = struct{}{}
	f.mu.Unlock()

	if hello, err := json.Marshal(feedMessage{Type: constants.WsFeedTypeHello, Version: globals.TRACKER_VERSION}); err == nil {
		_ = socket.WriteMessage(gws.OpcodeText, hello)
	}
}

func (f *Feed) OnClose(socket *gws.Conn, err error) {

	f.mu.Lock()
	delete(f.sessions, socket)
	f.mu.Unlock()
}

func (f *Feed) OnPing(socket *gws.Conn, payload []byte) {

	_ = socket.SetDeadline(time.Now().Add(pingWait))
	_ = socket.WritePong(payload)
}

func (f *Feed) OnMessage(socket *gws.Conn, message *gws.Message) {

	defer message.Close()

	// Text "ping" keeps browser clients alive; they cannot send control frames.
	if message.Opcode == gws.OpcodeText && string(message.Bytes()) == "ping" {
		_ = socket.SetDeadline(time.Now().Add(pingWait))
		_ = socket.WriteMessage(gws.OpcodeText, []byte("pong"))
	}
}

// OnRefresh broadcasts the update. Slow subscribers do not block the caller.
func (f *Feed) OnRefresh(update structures.RefreshUpdate) {

	metrics := update.Metrics

	payload, err := json.Marshal(feedMessage{
		Type:         constants.WsFeedTypeRefresh,
		BlockHeight:  update.BlockHeight,
		Metrics:      &metrics,
		Transactions: update.Transactions,
		Blocks:       update.Blocks,
	})
	if err != nil {
		utils.LogWithTime(fmt.Sprintf("Failed to encode feed update: %v", err), utils.RED_COLOR)
		return
	}

	broadcaster := gws.NewBroadcaster(gws.OpcodeText, payload)
	defer broadcaster.Close()

	f.mu.RLock()
	defer f.mu.RUnlock()

	for socket := range f.sessions {
		_ = broadcaster.Broadcast(socket)
	}
}

func (f *Feed) Count() int {

	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.sessions)
}

// CreateWebsocketServer serves the feed on its own listener, like the HTTP API.
func CreateWebsocketServer(feed *Feed) {

	wsAddr := globals.CONFIGURATION.WebSocketInterface + ":" + strconv.Itoa(globals.CONFIGURATION.WebSocketPort)

	mux := http.NewServeMux()
	mux.Handle("/", feed)

	utils.LogWithTime(fmt.Sprintf("Websocket feed is starting at ws://%s ...✅", wsAddr), utils.CYAN_COLOR)

	if err := http.ListenAndServe(wsAddr, mux); err != nil {
		utils.LogWithTime(fmt.Sprintf("Error in websocket server: %s", err), utils.RED_COLOR)
	}
}
