package ui

import (
	"fmt"
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"idflow/internal/domain"
	"idflow/internal/lifecycle"
	"idflow/internal/rules"
)

type statusData struct {
	Org         string
	Last        *lifecycle.TickSummary
	Rules       *rules.Config
	Federation  *domain.FederationEndpoint
	AuthEnabled bool
}

const stylesheet = `
body { font-family: ui-sans-serif, system-ui, sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.05rem; margin-top: 2rem; border-bottom: 1px solid #ddd; padding-bottom: .3rem; }
table { border-collapse: collapse; }
td, th { text-align: left; padding: .2rem 1.2rem .2rem 0; }
.muted { color: #777; }
.badge { display: inline-block; padding: .1rem .5rem; border-radius: .5rem; background: #eef; }
`

func statusPage(data statusData) gomponents.Node {
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.TitleEl(gomponents.Text(data.Org+" – membership engine")),
			html.StyleEl(gomponents.Raw(stylesheet)),
		),
		html.Body(
			html.H1(gomponents.Text("Membership engine: "+data.Org)),
			tickSection(data.Last),
			rulesSection(data.Rules),
			federationSection(data.Federation, data.AuthEnabled),
		),
	)
}

func tickSection(last *lifecycle.TickSummary) gomponents.Node {
	if last == nil {
		return gomponents.Group([]gomponents.Node{
			html.H2(gomponents.Text("Last tick")),
			html.P(html.Class("muted"), gomponents.Text("No completed ticks yet.")),
		})
	}
	rows := []gomponents.Node{
		row("Started", last.StartedAt.Format(time.RFC3339)),
		row("Duration", last.Duration.String()),
		row("Principals", fmt.Sprint(last.Principals)),
		row("Memberships added", fmt.Sprint(last.Reconcile.Added)),
		row("Memberships removed", fmt.Sprint(last.Reconcile.Removed)),
		row("Operations skipped", fmt.Sprint(last.Reconcile.Skipped)),
		row("Stage events", fmt.Sprint(last.StageEvents)),
		row("Status events", fmt.Sprint(last.StatusEvents)),
	}
	if last.Error != "" {
		rows = append(rows, row("Error", last.Error))
	}
	return gomponents.Group([]gomponents.Node{
		html.H2(gomponents.Text("Last tick")),
		html.Table(html.TBody(rows...)),
	})
}

func rulesSection(cfg *rules.Config) gomponents.Node {
	rows := []gomponents.Node{
		row("Groups", fmt.Sprint(len(cfg.Groups))),
		row("Rules", fmt.Sprint(len(cfg.Rules))),
	}
	for _, le := range cfg.Set.Errors() {
		rows = append(rows, row("Disabled: "+le.RuleID, le.Message))
	}
	return gomponents.Group([]gomponents.Node{
		html.H2(gomponents.Text("Rules")),
		html.Table(html.TBody(rows...)),
	})
}

func federationSection(ep *domain.FederationEndpoint, authEnabled bool) gomponents.Node {
	if ep == nil {
		return gomponents.Group([]gomponents.Node{
			html.H2(gomponents.Text("Federation")),
			html.P(html.Class("muted"), gomponents.Text("Not configured.")),
		})
	}
	auth := "disabled"
	if authEnabled {
		auth = "enabled"
	}
	return gomponents.Group([]gomponents.Node{
		html.H2(gomponents.Text("Federation")),
		html.Table(html.TBody(
			row("Role", string(ep.Role)),
			row("State", string(ep.State)),
			row("Federated auth", auth),
		)),
	})
}

func row(label, value string) gomponents.Node {
	return html.Tr(
		html.Th(gomponents.Text(label)),
		html.Td(html.Span(html.Class("badge"), gomponents.Text(value))),
	)
}
