package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optiq-io/qbrix/internal/domain"
)

func TestValidOperatorRejectsUnknown(t *testing.T) {
	assert.False(t, domain.ValidOperator(domain.RuleOperator("between")))
	assert.True(t, domain.ValidOperator(domain.OpIn))
}
