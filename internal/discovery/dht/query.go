package dht

import (
	"context"
	"sort"
	"time"

	"github.com/coreoverlay/go-coreoverlay/pkg/types"
)

// ============================================================================
//                           迭代查询框架
// ============================================================================

// queryState 候选节点状态
type queryState int

const (
	statePending queryState = iota
	stateWaiting
	stateResponded
	stateFailed
)

type candidate struct {
	node  *RoutingNode
	state queryState
}

type queryResult struct {
	c    *candidate
	resp *Message
	err  error
}

// iterativeQuery Kademlia 迭代查询
//
// 候选列表按与目标的距离排序，每轮最多 Alpha 个请求并发进行。
// 当最近的 K 个候选都已响应或失败、找到值、或收集到足够的 Provider 时结束。
type iterativeQuery struct {
	dht     *DHT
	target  types.NodeID
	newReq  func() *Message
	onReply func(*Message) bool // 返回 true 时提前结束

	candidates []*candidate
	seen       map[types.NodeID]struct{}
}

func newIterativeQuery(d *DHT, target types.NodeID, newReq func() *Message, onReply func(*Message) bool) *iterativeQuery {
	q := &iterativeQuery{
		dht:     d,
		target:  target,
		newReq:  newReq,
		onReply: onReply,
		seen:    make(map[types.NodeID]struct{}),
	}
	q.seen[d.routingTable.LocalID()] = struct{}{}
	return q
}

// Run 执行迭代查询，返回已响应的最近 K 个节点
func (q *iterativeQuery) Run(ctx context.Context) ([]*RoutingNode, error) {
	startTime := time.Now()

	for _, n := range q.dht.routingTable.NearestPeers(q.target, q.dht.config.BucketSize) {
		q.add(n)
	}
	if len(q.candidates) == 0 {
		return nil, ErrNoNearbyPeers
	}

	results := make(chan queryResult, q.dht.config.Alpha)
	inflight := 0
	stopped := false

	for !stopped {
		for inflight < q.dht.config.Alpha {
			c := q.next()
			if c == nil {
				break
			}
			c.state = stateWaiting
			inflight++
			go func(c *candidate) {
				resp, err := q.dht.sendRequest(ctx, c.node.AddrInfo(), q.newReq())
				results <- queryResult{c: c, resp: resp, err: err}
			}(c)
		}
		if inflight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return q.closest(), ctx.Err()
		case r := <-results:
			inflight--
			if r.err != nil {
				r.c.state = stateFailed
				continue
			}
			r.c.state = stateResponded
			for _, p := range r.resp.CloserPeers {
				q.addRecord(p)
			}
			if q.onReply != nil && q.onReply(r.resp) {
				stopped = true
			}
		}
	}

	closest := q.closest()
	logger.Debug("DHT 迭代查询完成",
		"target", q.target.ShortString(),
		"duration", time.Since(startTime),
		"candidates", len(q.candidates),
		"closest", len(closest))
	return closest, nil
}

func (q *iterativeQuery) addRecord(p PeerRecord) {
	id, err := p.ID.NodeID()
	if err != nil {
		return
	}
	q.add(&RoutingNode{ID: id, Addrs: dialableAddrs(p.Addrs)})
}

func (q *iterativeQuery) add(n *RoutingNode) {
	if _, ok := q.seen[n.ID]; ok {
		return
	}
	q.seen[n.ID] = struct{}{}
	q.candidates = append(q.candidates, &candidate{node: n})
	sort.Slice(q.candidates, func(i, j int) bool {
		return CompareDistance(q.candidates[i].node.ID, q.candidates[j].node.ID, q.target) < 0
	})
}

// next 返回最近 K 个未失败候选中下一个待查询的节点
func (q *iterativeQuery) next() *candidate {
	live := 0
	for _, c := range q.candidates {
		if c.state == stateFailed {
			continue
		}
		if live >= q.dht.config.BucketSize {
			return nil
		}
		live++
		if c.state == statePending {
			return c
		}
	}
	return nil
}

func (q *iterativeQuery) closest() []*RoutingNode {
	var out []*RoutingNode
	for _, c := range q.candidates {
		if c.state == stateResponded {
			out = append(out, c.node)
			if len(out) >= q.dht.config.BucketSize {
				break
			}
		}
	}
	return out
}
