package queue

import (
	"fmt"
	"time"

	"github.com/caseworks/casedex/internal/domain"
)

const (
	valStorageURI         = "storage_uri"
	valCaseRef            = "case_ref"
	valCorrespondenceType = "correspondence_type"
	valReceivedDate       = "received_date"
)

func marshalWorkItem(item *domain.WorkItem) (map[string]string, error) {
	if item.StorageURI == "" {
		return nil, fmt.Errorf("work item missing storage uri")
	}

	values := map[string]string{
		valStorageURI:         item.StorageURI,
		valCaseRef:            item.CaseRef,
		valCorrespondenceType: item.CorrespondenceType,
	}
	if !item.ReceivedDate.IsZero() {
		values[valReceivedDate] = item.ReceivedDate.Format(time.RFC3339)
	}
	return values, nil
}

func unmarshalWorkItem(id string, values map[string]string) (*domain.WorkItem, error) {
	uri := values[valStorageURI]
	if uri == "" {
		return nil, fmt.Errorf("message %s missing %s", id, valStorageURI)
	}

	item := &domain.WorkItem{
		MessageID:          id,
		StorageURI:         uri,
		CaseRef:            values[valCaseRef],
		CorrespondenceType: values[valCorrespondenceType],
	}

	if raw := values[valReceivedDate]; raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("message %s bad %s %q: %w", id, valReceivedDate, raw, err)
		}
		item.ReceivedDate = t
	}

	return item, nil
}
