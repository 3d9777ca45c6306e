package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/caseworks/casedex/internal/db"
)

// StreamAdd appends an entry to a stream with an auto-generated ID.
func (s *Store) StreamAdd(ctx context.Context, stream string, values map[string]string) (string, error) {
	cmd := s.b().Xadd().Key(stream).Id("*").FieldValue()
	for k, v := range values {
		cmd = cmd.FieldValue(k, v)
	}
	id, err := s.do(ctx, cmd.Build()).ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpXAdd, Err: err}
	}
	return id, nil
}

// StreamEnsureGroup creates a consumer group at the stream tail, creating the
// stream itself if absent. An already existing group is not an error.
func (s *Store) StreamEnsureGroup(ctx context.Context, stream, group string) error {
	cmd := s.b().XgroupCreate().Key(stream).Group(group).Id("$").Mkstream().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "BUSYGROUP") {
			return nil
		}
		return &db.Error{Op: db.OpXGroup, Err: err}
	}
	return nil
}

// StreamReadGroup reads up to count new entries for a consumer, blocking up to
// the given duration. A nil slice with nil error means the block timed out.
func (s *Store) StreamReadGroup(
	ctx context.Context, stream, group, consumer string, count int, block time.Duration,
) ([]db.StreamMessage, error) {
	var cmd rueidis.Completed
	if block > 0 {
		cmd = s.b().Xreadgroup().
			Group(group, consumer).
			Count(int64(count)).
			Block(block.Milliseconds()).
			Streams().Key(stream).Id(">").
			Build()
	} else {
		cmd = s.b().Xreadgroup().
			Group(group, consumer).
			Count(int64(count)).
			Streams().Key(stream).Id(">").
			Build()
	}

	res, err := s.do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpXReadGroup, Err: err}
	}

	return toStreamMessages(res[stream]), nil
}

// StreamAck acknowledges processed entries for a consumer group.
func (s *Store) StreamAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	cmd := s.b().Xack().Key(stream).Group(group).Id(ids...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAck, Err: err}
	}
	return nil
}

// StreamAutoClaim transfers ownership of entries pending longer than minIdle
// to the given consumer, scanning from the start of the PEL.
func (s *Store) StreamAutoClaim(
	ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int,
) ([]db.StreamMessage, error) {
	cmd := s.b().Xautoclaim().
		Key(stream).
		Group(group).
		Consumer(consumer).
		MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
		Start("0-0").
		Count(int64(count)).
		Build()

	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpXAutoClaim, Err: err}
	}
	// Reply: [next-cursor, entries, deleted-ids]
	if len(raw) < 2 {
		return nil, nil
	}

	entries, err := raw[1].ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpXAutoClaim, Err: err}
	}

	out := make([]db.StreamMessage, 0, len(entries))
	for _, e := range entries {
		entry, err := e.AsXRangeEntry()
		if err != nil {
			continue
		}
		out = append(out, db.StreamMessage{ID: entry.ID, Values: entry.FieldValues})
	}
	return out, nil
}

// StreamPending returns delivery metadata for specific pending entries.
func (s *Store) StreamPending(
	ctx context.Context, stream, group string, ids ...string,
) ([]db.PendingEntry, error) {
	out := make([]db.PendingEntry, 0, len(ids))

	for _, id := range ids {
		cmd := s.b().Xpending().Key(stream).Group(group).Start(id).End(id).Count(1).Build()
		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			return nil, &db.Error{Op: db.OpXPending, Err: err}
		}

		for _, row := range raw {
			fields, err := row.ToArray()
			if err != nil || len(fields) < 4 {
				continue
			}
			// Extended row: [id, consumer, idle-ms, deliveries]
			entryID, err := fields[0].ToString()
			if err != nil {
				continue
			}
			consumer, _ := fields[1].ToString()
			idleMs, _ := fields[2].AsInt64()
			deliveries, _ := fields[3].AsInt64()

			out = append(out, db.PendingEntry{
				ID:         entryID,
				Consumer:   consumer,
				Idle:       time.Duration(idleMs) * time.Millisecond,
				Deliveries: deliveries,
			})
		}
	}

	return out, nil
}

func toStreamMessages(entries []rueidis.XRangeEntry) []db.StreamMessage {
	if len(entries) == 0 {
		return nil
	}
	out := make([]db.StreamMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, db.StreamMessage{ID: e.ID, Values: e.FieldValues})
	}
	return out
}
