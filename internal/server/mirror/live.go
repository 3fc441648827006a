package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/logging"
)

// Frame is a client→server message on the live feed.
type Frame struct {
	Op  string    `json:"op"` // put | delete
	Doc *Document `json:"doc"`
}

// Ack answers a client frame.
type Ack struct {
	Op         string `json:"op"`
	ExternalID string `json:"externalId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LiveFeed streams a user's mirror changes over a websocket and accepts
// client writes, standing in for the mobile SDK's realtime channel.
type LiveFeed struct {
	store *Store
	log   logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewLiveFeed(store *Store, log logging.Logger) *LiveFeed {
	return &LiveFeed{
		store:   store,
		log:     log.With("module", "live"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the mux serving GET /live?user={id}.
func (f *LiveFeed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", f.serve)
	return mux
}

func (f *LiveFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *LiveFeed) serve(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		f.log.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}

	changes, unwatch := f.store.Watch(64)
	defer unwatch()

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan []byte, 16)
	go f.readLoop(ctx, cancel, conn, userID, out)

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			if err := f.write(ctx, conn, b); err != nil {
				return
			}
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.UserID != userID {
				continue
			}
			b, err := json.Marshal(c)
			if err != nil {
				continue
			}
			if err := f.write(ctx, conn, b); err != nil {
				return
			}
		}
	}
}

func (f *LiveFeed) write(ctx context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

func (f *LiveFeed) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, userID string, out chan<- []byte) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		ack := f.apply(ctx, userID, data)
		b, _ := json.Marshal(ack)
		select {
		case out <- b:
		case <-ctx.Done():
			return
		}
	}
}

func (f *LiveFeed) apply(ctx context.Context, userID string, data []byte) Ack {
	var fr Frame
	if err := json.Unmarshal(data, &fr); err != nil {
		return Ack{Error: "malformed frame"}
	}
	ack := Ack{Op: fr.Op}
	if fr.Doc == nil {
		ack.Error = "doc is required"
		return ack
	}

	var err error
	switch fr.Op {
	case "put":
		doc := *fr.Doc
		doc.UserID = userID
		doc.UpdatedAt = time.Time{}
		if doc.ExternalID == "" {
			ack.ExternalID, err = f.store.Create(ctx, &doc, OriginClient)
		} else {
			ack.ExternalID = doc.ExternalID
			err = f.ownedBy(ctx, doc.ExternalID, userID)
			if err == nil {
				err = f.store.Upsert(ctx, &doc, OriginClient)
			}
		}
	case "delete":
		ack.ExternalID = fr.Doc.ExternalID
		if err = f.ownedBy(ctx, fr.Doc.ExternalID, userID); err == nil {
			_, err = f.store.Delete(ctx, fr.Doc.ExternalID, OriginClient)
		}
	default:
		err = errors.New("unknown op")
	}
	if err != nil {
		ack.Error = err.Error()
		f.log.Warn(ctx, "live frame rejected", "user_id", userID, "op", fr.Op, "error", err)
	}
	return ack
}

var errForeignDocument = errors.New("document belongs to another user")

// ownedBy allows writes to missing documents and to the user's own.
func (f *LiveFeed) ownedBy(ctx context.Context, externalID, userID string) error {
	d, err := f.store.Get(ctx, externalID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return errForeignDocument
	}
	return nil
}
