// Package di contains dependency injection tokens for the quoting context.
package di

import (
	"github.com/zook8/DEX-quotes/business/quoting/app"
	"github.com/zook8/DEX-quotes/business/quoting/infra/nodecaller"
	"github.com/zook8/DEX-quotes/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Simulator    = di.NewToken[*app.Simulator]("quoting.Simulator")
	PoolRegistry = di.NewToken[app.PoolRegistry]("quoting.PoolRegistry")
	PriceTable   = di.NewToken[app.PriceTable]("quoting.PriceTable")
)

// Private dependency tokens - internal to quoting module
var (
	NodeCaller  = di.NewToken[nodecaller.ContractCaller]("quoting:nodeCaller")
	AttemptSink = di.NewToken[app.AttemptSink]("quoting:attemptSink")
)

// Helper functions for type-safe access
func GetSimulator(c di.ServiceRegistry) *app.Simulator {
	return di.GetToken(c, Simulator)
}

func GetPoolRegistry(c di.ServiceRegistry) app.PoolRegistry {
	return di.GetToken(c, PoolRegistry)
}

func GetPriceTable(c di.ServiceRegistry) app.PriceTable {
	return di.GetToken(c, PriceTable)
}

func GetNodeCaller(c di.ServiceRegistry) nodecaller.ContractCaller {
	return di.GetToken(c, NodeCaller)
}

func GetAttemptSink(c di.ServiceRegistry) app.AttemptSink {
	return di.GetToken(c, AttemptSink)
}
