package inboundnode

import (
	"fmt"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

func Finalize(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	return GraphOutput{
		Route:    in.Transition.Route,
		Decision: in.Decision,
		Sent:     in.Sent,
	}, nil
}
