// Package observability turns graph lifecycle events into prometheus metrics
// and structured log lines.
//
// Both are delivered as domain.LifecycleHooks so they compose with any other
// hooks through LifecycleHooks.Merge:
//
//	m := observability.NewMetrics(prometheus.NewRegistry())
//	g, _ := netviz.New(netviz.WithLifecycleHooks(m.Hooks().Merge(observability.LogHooks(logger))))
package observability
