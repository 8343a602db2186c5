package reporter

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/metrics"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// MaxPacketSize 单个 UDP 数据报的最大字节数.
const MaxPacketSize = 65000

// udpClient 通过 UDP 发送 OTLP protobuf 编码的 ResourceSpans.
//
// 每个 ResourceSpans 编码为一个数据报；超过 maxPacketSize 时按 span 拆分，
// 单个 span 仍然超出时丢弃.
type udpClient struct {
	addr          string
	maxPacketSize int
	logger        logger.Logger
	metrics       *metrics.TracerMetrics

	mu   sync.Mutex
	conn net.Conn
}

var _ otlptrace.Client = (*udpClient)(nil)

func newUDPClient(addr string, log logger.Logger, m *metrics.TracerMetrics) *udpClient {
	if log == nil {
		log = logger.Nop()
	}
	return &udpClient{
		addr:          addr,
		maxPacketSize: MaxPacketSize,
		logger:        log,
		metrics:       m,
	}
}

// Start 建立 UDP 连接.
func (c *udpClient) Start(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Stop 关闭 UDP 连接.
func (c *udpClient) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// UploadTraces 发送一批 ResourceSpans.
func (c *udpClient) UploadTraces(ctx context.Context, protoSpans []*tracepb.ResourceSpans) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrSenderClosed
	}

	var errs []error
	for _, rs := range protoSpans {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, packet := range c.packets(rs) {
			if _, err := c.conn.Write(packet); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// packets 将 ResourceSpans 编码为一个或多个数据报.
func (c *udpClient) packets(rs *tracepb.ResourceSpans) [][]byte {
	data, err := proto.Marshal(rs)
	if err == nil && len(data) <= c.maxPacketSize {
		return [][]byte{data}
	}

	var (
		out     [][]byte
		dropped int
	)
	for _, ss := range rs.GetScopeSpans() {
		for _, span := range ss.GetSpans() {
			single := &tracepb.ResourceSpans{
				Resource:  rs.GetResource(),
				SchemaUrl: rs.GetSchemaUrl(),
				ScopeSpans: []*tracepb.ScopeSpans{{
					Scope:     ss.GetScope(),
					SchemaUrl: ss.GetSchemaUrl(),
					Spans:     []*tracepb.Span{span},
				}},
			}
			b, err := proto.Marshal(single)
			if err != nil || len(b) > c.maxPacketSize {
				dropped++
				continue
			}
			out = append(out, b)
		}
	}

	if dropped > 0 {
		c.metrics.SpansReported(metrics.ResultDropped, dropped)
		c.logger.With(
			logger.Int("dropped", dropped),
			logger.Int("maxPacketSize", c.maxPacketSize),
		).Warn("[Tracing] span 超过 UDP 数据报上限，已丢弃")
	}
	return out
}
