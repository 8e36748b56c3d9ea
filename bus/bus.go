// Package bus is the in-process publish/subscribe fabric the services talk
// over. Topics are token paths; "+" matches one level and "#" matches the
// rest of the path, including nothing. Retained messages are replayed to
// new subscribers. Every subscription has a bounded queue that drops its
// oldest message when full, so a slow reader never blocks a publisher.
package bus

import (
	"context"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
)

const (
	SingleLevel = "+"
	MultiLevel  = "#"

	replyRoot = "_reply"
)

// Topic is a path of comparable tokens, usually strings.
type Topic []any

// T builds a Topic and panics on a token that cannot be a map key.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token is not comparable")
		}
	}
	return Topic(tokens)
}

// String joins the tokens with '/'.
func (t Topic) String() string {
	var s string
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		switch v := tok.(type) {
		case string:
			s += v
		case int:
			s += strconv.Itoa(v)
		default:
			s += "?"
		}
	}
	return s
}

// Message is one publication. A retained message with a nil payload clears
// the retained value of its topic.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// Subscription receives the messages matching its pattern.
type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// offer queues m, discarding the oldest queued message if the queue is
// full. Callers hold the bus lock.
func (s *Subscription) offer(m *Message) {
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- m:
	default:
	}
}

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.children) == 0 && n.retained == nil
}

// Bus routes messages between connections.
type Bus struct {
	mu   sync.Mutex
	root node
	qLen int
	seq  atomic.Uint32
}

// NewBus returns a bus whose subscriptions queue up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{qLen: queueLen}
}

// NewMessage builds a message for topic.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription and updates the
// retained value of its topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		n := &b.root
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
	deliver(&b.root, msg.Topic, msg)
}

// deliver walks the subscription patterns that match topic.
func deliver(n *node, topic Topic, msg *Message) {
	if h := n.children[MultiLevel]; h != nil {
		for _, s := range h.subs {
			s.offer(msg)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			s.offer(msg)
		}
		return
	}
	if c := n.children[topic[0]]; c != nil {
		deliver(c, topic[1:], msg)
	}
	if p := n.children[SingleLevel]; p != nil && topic[0] != SingleLevel {
		deliver(p, topic[1:], msg)
	}
}

// collectRetained appends the retained messages whose topics match pattern.
func collectRetained(n *node, pattern Topic, out []*Message) []*Message {
	if len(pattern) == 0 {
		if n.retained != nil {
			out = append(out, n.retained)
		}
		return out
	}
	switch pattern[0] {
	case MultiLevel:
		return collectAll(n, out)
	case SingleLevel:
		for tok, c := range n.children {
			if tok == SingleLevel || tok == MultiLevel {
				continue
			}
			out = collectRetained(c, pattern[1:], out)
		}
		return out
	}
	if c := n.children[pattern[0]]; c != nil {
		out = collectRetained(c, pattern[1:], out)
	}
	return out
}

func collectAll(n *node, out []*Message) []*Message {
	if n.retained != nil {
		out = append(out, n.retained)
	}
	for _, c := range n.children {
		out = collectAll(c, out)
	}
	return out
}

func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := &b.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)
	for _, m := range collectRetained(&b.root, sub.topic, nil) {
		sub.offer(m)
	}
}

// unsubscribe removes sub and prunes nodes left empty. It reports whether
// sub was still registered.
func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := make([]*node, 0, len(sub.topic)+1)
	n := &b.root
	path = append(path, n)
	for _, tok := range sub.topic {
		if n = n.child(tok, false); n == nil {
			return false
		}
		path = append(path, n)
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	for i := len(sub.topic); i > 0 && path[i].empty(); i-- {
		delete(path[i-1].children, sub.topic[i-1])
	}
	return found
}

// Connection is one client of the bus. It owns its subscriptions.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection returns a connection named id.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// ID returns the connection name.
func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers pattern. Matching retained messages are queued
// immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{topic: pattern, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.subscribe(sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a
// no-op.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if c.bus.unsubscribe(sub) {
		close(sub.ch)
	}
}

// Disconnect drops every subscription of the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		if c.bus.unsubscribe(s) {
			close(s.ch)
		}
	}
}

// Request gives msg a private reply topic, subscribes to it and publishes
// msg. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = T(replyRoot, c.id, int(c.bus.seq.Add(1)))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes msg and waits for the first reply or ctx.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, context.Canceled
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its reply topic. Requests without one are ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}
