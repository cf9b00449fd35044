package dht

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "coreoverlay"

// Metrics DHT Prometheus 指标
//
// 所有方法对 nil 接收者安全，未启用指标时传 nil 即可。
type Metrics struct {
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	messages      *prometheus.CounterVec
	routingTable  prometheus.Gauge
	records       *prometheus.GaugeVec
}

// NewMetrics 创建并注册 DHT 指标
//
// 同一 registry 上重复注册时复用已注册的收集器。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dht",
			Name:      "queries_total",
			Help:      "DHT 操作次数",
		}, []string{"op", "result"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dht",
			Name:      "query_duration_seconds",
			Help:      "DHT 迭代查询耗时",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"op"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dht",
			Name:      "messages_total",
			Help:      "按类型与方向统计的 DHT 消息数",
		}, []string{"type", "direction"}),
		routingTable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "dht",
			Name:      "routing_table_size",
			Help:      "路由表中的节点数",
		}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "dht",
			Name:      "stored_records",
			Help:      "本地存储的记录数",
		}, []string{"kind"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.queries, err = register(reg, m.queries)
	if err != nil {
		return nil, err
	}
	if m.queryDuration, err = register(reg, m.queryDuration); err != nil {
		return nil, err
	}
	if m.messages, err = register(reg, m.messages); err != nil {
		return nil, err
	}
	if m.routingTable, err = register(reg, m.routingTable); err != nil {
		return nil, err
	}
	if m.records, err = register(reg, m.records); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeQuery(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.queries.WithLabelValues(op, result).Inc()
	m.queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) messageSent(t MessageType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(t.String(), "out").Inc()
}

func (m *Metrics) messageReceived(t MessageType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(t.String(), "in").Inc()
}

func (m *Metrics) setRoutingTableSize(n int) {
	if m == nil {
		return
	}
	m.routingTable.Set(float64(n))
}

func (m *Metrics) setRecords(values, providers int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues("value").Set(float64(values))
	m.records.WithLabelValues("provider").Set(float64(providers))
}
