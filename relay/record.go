package relay

import (
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// NewRequestRecord summarises a finished (or failed) request for archiving.
func NewRequestRecord(desc interfaces.RequestDescriptor, consumer interfaces.ContractAddress, result *Result, err error) interfaces.RequestRecord {
	record := interfaces.RequestRecord{
		DescriptorHash: desc.Hash(),
		Consumer:       consumer.String(),
		Args:           append([]string(nil), desc.Args...),
		Secrets:        desc.Secrets,
	}

	if result != nil {
		record.Receipt = result.Receipt
		record.SubmittedAt = result.SubmittedAt
		record.CompletedAt = result.CompletedAt
		if err == nil {
			record.OutcomeKind = result.Value.Kind.String()
			record.Outcome = result.Value.String()
		}
	}
	if err != nil {
		record.Error = err.Error()
	}
	return record
}
