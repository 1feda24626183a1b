package ledgerclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/bookpost/internal/config"
	"github.com/smallbiznis/bookpost/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger.client",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics        `optional:"true"`
	Posting *metrics.PostingMetrics `optional:"true"`
}

// NewFromConfig selects the ledger adapter named by LEDGER_PROVIDER.
func NewFromConfig(p Params) (Client, error) {
	ledgerCfg := p.Cfg.Ledger
	creds := Credentials{
		TokenURL:     ledgerCfg.TokenURL,
		ClientID:     ledgerCfg.ClientID,
		ClientSecret: ledgerCfg.ClientSecret,
		AccessToken:  ledgerCfg.AccessToken,
	}

	var (
		client Client
		err    error
	)
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(ledgerCfg.Provider)) {
	case config.LedgerProviderQBO:
		client, err = NewQBOClient(ctx, QBOConfig{
			BaseURL:     ledgerCfg.BaseURL,
			RealmID:     ledgerCfg.QBORealmID,
			Credentials: creds,
			Timeout:     ledgerCfg.Timeout,
		})
	case config.LedgerProviderXero:
		client, err = NewXeroClient(ctx, XeroConfig{
			BaseURL:     ledgerCfg.BaseURL,
			TenantID:    ledgerCfg.XeroTenantID,
			Credentials: creds,
			Timeout:     ledgerCfg.Timeout,
		})
	case config.LedgerProviderSandbox, "":
		if p.Cfg.IsProduction() {
			p.Log.Warn("sandbox ledger configured in production")
		}
		client = NewSandbox()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, ledgerCfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("configure %s ledger: %w", ledgerCfg.Provider, err)
	}

	p.Log.Info("ledger client configured", zap.String("provider", client.Provider()))
	return Instrumented(client, p.Log, p.Metrics, p.Posting), nil
}
