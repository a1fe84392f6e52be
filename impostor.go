// Impostor game transport
//
// Browsers hold a single websocket each; every inbound event is a JSON
// envelope with a "type" field, decoded here and dispatched to the game
// coordinator. The gateway owns the connection registry and implements
// the coordinator's Notifier, so the game logic never touches sockets.
//
// Routes:
//   - $path            → HTML client (create-room mode)
//   - $path/:code      → HTML client with the room code prefilled
//   - $path/:code/qr   → PNG QR code linking to the room page
//   - /ws              → the websocket endpoint itself

package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

// mintConnID generates the ephemeral per-connection identifier players
// are known by for the lifetime of their socket.
func mintConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	return hex.EncodeToString(buf)
}

// Gateway tracks connected clients by connection id and delivers
// coordinator output to them. Sends never block: a client whose buffer
// is full is dropped, same as any other slow consumer.
type Gateway struct {
	mu    sync.Mutex
	conns map[string]*client
}

func newGateway() *Gateway {
	return &Gateway{
		conns: make(map[string]*client),
	}
}

func (gw *Gateway) add(c *client) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	gw.conns[c.id] = c
}

func (gw *Gateway) remove(id string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if c, ok := gw.conns[id]; ok {
		delete(gw.conns, id)
		close(c.send)
	}
}

func (gw *Gateway) Unicast(playerID string, msg any) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	gw.sendLocked(playerID, msg)
}

func (gw *Gateway) Multicast(playerIDs []string, msg any) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	for _, id := range playerIDs {
		gw.sendLocked(id, msg)
	}
}

func (gw *Gateway) sendLocked(id string, msg any) {
	c, ok := gw.conns[id]
	if !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(gw.conns, id)
		close(c.send)
	}
}

// serveGameWS upgrades the connection, registers it with the gateway,
// and pumps messages until the socket dies.
func serveGameWS(cfg *Config, game *Game, gw *Gateway) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		connID := mintConnID()
		if connID == "" {
			http.Error(w, "unable to assign connection id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		c := &client{
			conn: conn,
			send: make(chan any, 8),
			id:   connID,
		}

		gw.add(c)
		logf(cfg, "GAMES: Connection %s from %s", connID[:8], realIP(r))

		go c.writePump()
		c.readPump(game, gw)
	}
}

func (c *client) readPump(game *Game, gw *Gateway) {
	defer func() {
		gw.remove(c.id)
		game.Disconnect(c.id)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "create-room":
			game.CreateRoom(c.id, msg.Username, msg.Emoji)
		case "join-room":
			game.JoinRoom(c.id, msg.RoomID, msg.Username, msg.Emoji)
		case "player-ready":
			game.SetReady(c.id, msg.RoomID, msg.IsReady)
		case "start-game-signal":
			game.StartGame(msg.RoomID, msg.Category, msg.ShowHint)
		case "finish-turn":
			game.FinishTurn(msg.RoomID)
		case "vote-player":
			game.Vote(c.id, msg.RoomID, msg.TargetID)
		case "reset-game":
			game.ResetGame(msg.RoomID)
		default:
			// ignore unknown types
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(impostorHTML))
	}
}

// registerImpostorGame wires up the game routes and the websocket
// endpoint shared by all rooms.
func registerImpostorGame(cfg *Config, path string, mux *httprouter.Router, game *Game, gw *Gateway) {
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))
	mux.GET(cfg.prefix+path+"/:code", getIndexHandler(cfg))
	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)
	mux.GET(cfg.prefix+"/ws", serveGameWS(cfg, game, gw))
}

// Minimal in-browser client for quick testing; real clients speak the
// same JSON protocol over /ws.
const impostorHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Impostor</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem; max-width: 32rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; }
  button { margin: 0.15rem; }
  #players li { padding: 0.25rem 0; border-bottom: 1px solid #ddd; list-style: none; }
  #word { font-size: 1.4rem; font-weight: bold; }
</style>
</head>
<body>
<h1>Impostor</h1>
<div id="status">Connecting…</div>
<div id="lobby">
  <input id="username" placeholder="Username">
  <input id="emoji" value="🕵️" size="2">
  <input id="room" placeholder="Room code" size="6">
  <button onclick="createRoom()">Create</button>
  <button onclick="joinRoom()">Join</button>
  <button onclick="ready(true)">Ready</button>
  <button onclick="ready(false)">Unready</button>
  <button onclick="startGame()">Start</button>
  <button onclick="finishTurn()">Finish turn</button>
  <button onclick="resetGame()">Reset</button>
</div>
<div id="word"></div>
<div id="turn"></div>
<div id="timer"></div>
<ul id="players"></ul>

<script>
(function() {
  const statusEl = document.getElementById('status');
  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + '/ws');
  let roomId = '';

  const parts = location.pathname.replace(/\/$/, '').split('/');
  const last = parts[parts.length - 1];
  if (last && last !== 'impostor') {
    document.getElementById('room').value = last;
  }

  ws.onopen = () => { statusEl.textContent = 'Connected.'; };
  ws.onclose = () => { statusEl.textContent = 'Disconnected.'; };

  ws.onmessage = (event) => {
    const msg = JSON.parse(event.data);
    switch (msg.type) {
    case 'room-created':
      roomId = msg.roomId;
      document.getElementById('room').value = roomId;
      statusEl.textContent = 'Room ' + roomId + ' created.';
      break;
    case 'update-players': {
      const ul = document.getElementById('players');
      ul.innerHTML = '';
      msg.players.forEach(p => {
        const li = document.createElement('li');
        li.textContent = p.emoji + ' ' + p.username +
          (p.isReady ? ' ✓' : '') + (p.id === msg.ownerId ? ' (owner)' : '');
        li.onclick = () => send({type: 'vote-player', roomId: roomId, targetId: p.id});
        ul.appendChild(li);
      });
      break;
    }
    case 'countdown': statusEl.textContent = 'Starting in ' + msg.count + '…'; break;
    case 'assign-role':
      document.getElementById('word').textContent =
        msg.word + (msg.category ? ' (' + msg.category + ')' : '');
      break;
    case 'change-phase': statusEl.textContent = 'Phase: ' + msg.phase; break;
    case 'next-turn': document.getElementById('turn').textContent = 'Turn: ' + msg.username; break;
    case 'timer-update': document.getElementById('timer').textContent = msg.secondsLeft + 's'; break;
    case 'update-votes': statusEl.textContent = 'Votes: ' + JSON.stringify(msg.votes); break;
    case 'game-result':
      statusEl.textContent = (msg.success ? 'Crew wins! ' : 'Impostor wins! ') +
        'Expelled: ' + msg.expelledName + '. Impostor: ' + msg.impostorName + '.';
      break;
    case 'error': statusEl.textContent = msg.message; break;
    }
  };

  function send(msg) { ws.send(JSON.stringify(msg)); }
  function val(id) { return document.getElementById(id).value; }

  window.createRoom = () => send({type: 'create-room', username: val('username'), emoji: val('emoji')});
  window.joinRoom = () => { roomId = val('room').toUpperCase(); send({type: 'join-room', roomId: roomId, username: val('username'), emoji: val('emoji')}); };
  window.ready = (r) => send({type: 'player-ready', roomId: roomId || val('room').toUpperCase(), isReady: r});
  window.startGame = () => send({type: 'start-game-signal', roomId: roomId || val('room').toUpperCase(), category: 'Random', showHint: true});
  window.finishTurn = () => send({type: 'finish-turn', roomId: roomId || val('room').toUpperCase()});
  window.resetGame = () => send({type: 'reset-game', roomId: roomId || val('room').toUpperCase()});
})();
</script>
</body>
</html>
`
