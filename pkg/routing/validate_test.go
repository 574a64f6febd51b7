package routing_test

import (
	"strings"
	"testing"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogOf derives a catalog that emits exactly what the table routes.
func catalogOf(table *routing.Table) routing.Catalog {
	type key struct {
		step  domain.Step
		token domain.Token
	}
	contexts := make(map[key][]string)
	var order []key
	for _, r := range table.Routes() {
		k := key{r.From, r.Token}
		if _, seen := contexts[k]; !seen {
			order = append(order, k)
			contexts[k] = nil
		}
		if r.Context != "" {
			contexts[k] = append(contexts[k], r.Context)
		}
	}

	catalog := make(routing.Catalog)
	for _, k := range order {
		catalog[k.step] = append(catalog[k.step], routing.Emission{Token: k.token, Contexts: contexts[k]})
	}
	return catalog
}

func TestValidate_ConversationIsComplete(t *testing.T) {
	table, err := routing.Conversation()
	require.NoError(t, err)

	assert.Empty(t, routing.Validate(table, catalogOf(table)))
	assert.NoError(t, routing.Check(table, catalogOf(table)))
}

func TestValidate_ReportsMissingImplementation(t *testing.T) {
	table, err := routing.Conversation()
	require.NoError(t, err)

	catalog := catalogOf(table)
	delete(catalog, domain.StepPaginate)

	err = routing.Check(table, catalog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "paginate" has no implementation`)
	assert.Contains(t, err.Error(), "targets an unimplemented step")
}

func TestValidate_ReportsUnroutedEmission(t *testing.T) {
	table, err := routing.Conversation()
	require.NoError(t, err)

	catalog := catalogOf(table)
	catalog[domain.StepCancel] = append(catalog[domain.StepCancel], routing.Emission{Token: domain.TokenError})

	errs := routing.Validate(table, catalog)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `step "cancel" emits "error" but no route handles it`)
}

func TestValidate_ReportsUnroutedContext(t *testing.T) {
	table, err := routing.Conversation()
	require.NoError(t, err)

	catalog := catalogOf(table)
	for i, em := range catalog[domain.StepHandleConfirmation] {
		if em.Token == domain.TokenConfirmed {
			catalog[domain.StepHandleConfirmation][i].Contexts = append(em.Contexts, "archive")
		}
	}

	errs := routing.Validate(table, catalog)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `context "archive"`)
}

func TestValidate_ReportsUndefinedToken(t *testing.T) {
	table, err := routing.Conversation()
	require.NoError(t, err)

	catalog := catalogOf(table)
	catalog[domain.StepUnknown] = append(catalog[domain.StepUnknown], routing.Emission{Token: domain.Token("shrug")})

	errs := routing.Validate(table, catalog)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "undefined token")
}

func TestValidate_ReportsDeadRoute(t *testing.T) {
	table, err := routing.Conversation()
	require.NoError(t, err)

	catalog := catalogOf(table)
	catalog[domain.StepPaginate] = []routing.Emission{{Token: domain.TokenDone}}

	errs := routing.Validate(table, catalog)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "is never emitted")
}

func TestValidate_ReportsUnreachableStep(t *testing.T) {
	b := routing.NewBuilder(domain.StepIngest)
	b.From(domain.StepIngest).On(domain.TokenOK, domain.StepFinalize)
	b.From(domain.StepFinalize).On(domain.TokenDone, domain.StepTerminal)
	b.From(domain.StepUnknown).On(domain.TokenDone, domain.StepFinalize)
	table, err := b.Build()
	require.NoError(t, err)

	errs := routing.Validate(table, catalogOf(table))
	var unreachable int
	for _, e := range errs {
		if strings.Contains(e.Error(), `step "unknown" is unreachable`) {
			unreachable++
		}
	}
	assert.Equal(t, 1, unreachable)
}

func TestValidate_ReportsStepWithoutExit(t *testing.T) {
	b := routing.NewBuilder(domain.StepIngest)
	b.From(domain.StepIngest).
		On(domain.TokenOK, domain.StepFinalize).
		On(domain.TokenCancel, domain.StepCancel)
	b.From(domain.StepCancel).On(domain.TokenDone, domain.StepUnknown)
	b.From(domain.StepUnknown).On(domain.TokenDone, domain.StepCancel)
	b.From(domain.StepFinalize).On(domain.TokenDone, domain.StepTerminal)
	table, err := b.Build()
	require.NoError(t, err)

	err = routing.Check(table, catalogOf(table))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "cancel" has no path to the terminal marker`)
	assert.Contains(t, err.Error(), `step "unknown" has no path to the terminal marker`)
}
