package detector

import (
	"sort"

	"github.com/smallbiznis/signalway/internal/detector/domain"
)

// Set is the fixed lookup of registered detectors.
type Set struct {
	byType map[string]domain.Detector
}

func NewSet(
	missedPayment *MissedPaymentDetector,
	overdueInvoices *OverdueInvoicesDetector,
	workspaceStale *WorkspaceStaleDetector,
) *Set {
	byType := map[string]domain.Detector{
		missedPayment.Type():   missedPayment,
		overdueInvoices.Type(): overdueInvoices,
		workspaceStale.Type():  workspaceStale,
	}
	return &Set{byType: byType}
}

// ByType resolves a detector by its alert type string.
func (s *Set) ByType(detectorType string) (domain.Detector, error) {
	detector, ok := s.byType[detectorType]
	if !ok {
		return nil, domain.ErrUnknownDetector
	}
	return detector, nil
}

// All returns every registered detector in stable type order.
func (s *Set) All() []domain.Detector {
	types := make([]string, 0, len(s.byType))
	for detectorType := range s.byType {
		types = append(types, detectorType)
	}
	sort.Strings(types)

	detectors := make([]domain.Detector, 0, len(types))
	for _, detectorType := range types {
		detectors = append(detectors, s.byType[detectorType])
	}
	return detectors
}
