package meter

import "github.com/ineyio/sharelink"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ sharelink.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAttempt(sharelink.AttemptEvent) {}
func (m *NoopMeter) OnResult(sharelink.ResultEvent)   {}
func (m *NoopMeter) OnQuota(sharelink.QuotaEvent)     {}
