package interceptors

import (
	"google.golang.org/grpc"

	"github.com/offerforge/offerforge/pkg/logger"
)

// stage is one unary/stream interceptor pair.
type stage struct {
	unary  grpc.UnaryServerInterceptor
	stream grpc.StreamServerInterceptor
}

// ChainBuilder collects interceptor stages. Stages run in the order they
// were added, so recovery belongs first.
type ChainBuilder struct {
	stages []stage
}

func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

func (b *ChainBuilder) add(u grpc.UnaryServerInterceptor, s grpc.StreamServerInterceptor) *ChainBuilder {
	b.stages = append(b.stages, stage{unary: u, stream: s})
	return b
}

func (b *ChainBuilder) WithRecovery(log logger.Logger) *ChainBuilder {
	return b.add(RecoveryUnaryInterceptor(log), RecoveryStreamInterceptor(log))
}

func (b *ChainBuilder) WithTracing() *ChainBuilder {
	return b.add(TracingUnaryInterceptor(), TracingStreamInterceptor())
}

func (b *ChainBuilder) WithRequestID() *ChainBuilder {
	return b.add(RequestIDUnaryInterceptor(), RequestIDStreamInterceptor())
}

// WithRateLimit limits each client to requestsPerSecond. A non-positive
// rate adds nothing.
func (b *ChainBuilder) WithRateLimit(requestsPerSecond float64, burst int) *ChainBuilder {
	if requestsPerSecond <= 0 {
		return b
	}
	rl := NewRateLimiter(requestsPerSecond, burst)
	return b.add(RateLimitUnaryInterceptor(rl), RateLimitStreamInterceptor(rl))
}

func (b *ChainBuilder) WithLogging(log logger.Logger) *ChainBuilder {
	return b.add(LoggingUnaryInterceptor(log), LoggingStreamInterceptor(log))
}

// WithMetrics records RPC metrics on m. A nil m uses collectors on the
// default registerer.
func (b *ChainBuilder) WithMetrics(m *Metrics) *ChainBuilder {
	return b.add(MetricsUnaryInterceptor(m), MetricsStreamInterceptor(m))
}

// Len is the number of stages.
func (b *ChainBuilder) Len() int { return len(b.stages) }

// Build turns the stages into server options. An empty builder yields none.
func (b *ChainBuilder) Build() []grpc.ServerOption {
	if len(b.stages) == 0 {
		return nil
	}
	unary := make([]grpc.UnaryServerInterceptor, len(b.stages))
	stream := make([]grpc.StreamServerInterceptor, len(b.stages))
	for i, st := range b.stages {
		unary[i], stream[i] = st.unary, st.stream
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
}
