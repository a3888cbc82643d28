package kafka

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const windowLengthWarningThreshold = 10000

type offsetState struct {
	window        []kafka.TopicPartition
	lastCommitted kafka.Offset
}

// OffsetManager is a thread-safe sliding-window offset manager providing
// at-least-once acknowledgment for a manually-committed consumer.
//
// Workers call InsertOffset once a record's side effects are fully applied.
// On every commit interval the manager commits, per partition, the highest
// offset whose predecessors have all been inserted, so an unprocessed record
// can never be skipped over by a later commit.
//
// The window is unbounded; a record that never completes blocks commits for
// its partition and the window keeps growing. Above
// windowLengthWarningThreshold entries, warnings are logged to help diagnose.
type OffsetManager struct {
	consumer        *kafka.Consumer
	autoOffsetReset string
	partitionStates map[int32]*offsetState
	mutex           sync.Mutex
	dryRun          bool // skip broker interactions, for tests
	log             *zap.SugaredLogger
}

// NewOffsetManager creates an OffsetManager and starts its commit loop,
// which runs until ctx is canceled.
func NewOffsetManager(
	ctx context.Context,
	consumer *kafka.Consumer,
	interval time.Duration,
	autoOffsetReset string,
	dryRun bool,
	log *zap.SugaredLogger,
) *OffsetManager {
	om := &OffsetManager{
		consumer:        consumer,
		autoOffsetReset: autoOffsetReset,
		partitionStates: make(map[int32]*offsetState),
		dryRun:          dryRun,
		log:             log,
	}
	go om.commitLoop(ctx, interval)
	return om
}

func (om *OffsetManager) commitLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			om.commitLatestValidOffsets()
		case <-ctx.Done():
			return
		}
	}
}

// commitLatestValidOffsets scans each partition's window for a contiguous
// run of offsets starting at lastCommitted, commits the run's end, and
// truncates the window.
func (om *OffsetManager) commitLatestValidOffsets() {
	var err error
	om.mutex.Lock()
	defer om.mutex.Unlock()

	for partition, state := range om.partitionStates {
		window := state.window
		lastCommitted := state.lastCommitted
		if len(window) == 0 {
			continue
		}

		if window[0].Offset <= lastCommitted+1 {
			end := 0
			for i := 1; i < len(window); i++ {
				// Offsets at or below lastCommitted can appear when a fresh
				// group forms with auto.offset.reset="latest" while the
				// producer is still writing; treat them as committed.
				if window[i].Offset <= lastCommitted {
					end = i
					continue
				}

				if window[i].Offset != window[i-1].Offset+1 {
					break
				}
				end = i
			}

			if !om.dryRun {
				_, err = om.consumer.CommitOffsets([]kafka.TopicPartition{window[end]})
			}
			if err != nil {
				om.log.Errorf("failed to commit offsets: %v", err)
				return
			}

			om.log.Debugf("committed offset %d for partition %d", window[end].Offset, partition)
			if end == len(window)-1 {
				om.partitionStates[partition] = &offsetState{
					[]kafka.TopicPartition{},
					window[end].Offset,
				}
			} else {
				om.partitionStates[partition] = &offsetState{window[end+1:], window[end].Offset}
			}
		}

		if len(om.partitionStates[partition].window) > windowLengthWarningThreshold {
			om.log.Warnf(
				"partition %d offset window length is high: %d",
				partition,
				len(om.partitionStates[partition].window),
			)
		}
	}
}

// InsertOffset records a processed message's commit offset in the window for
// partition offset.Partition. offset.Offset must be one higher than the
// offset of the processed message, per Kafka commit semantics.
func (om *OffsetManager) InsertOffset(ctx context.Context, offset kafka.TopicPartition) error {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	state := om.partitionStates[offset.Partition]
	if state == nil {
		om.log.Warnf("partition %d not found in partition states, ignoring", offset.Partition)
		return nil
	}

	// An uninitialized lastCommitted is pinned just below the first inserted
	// offset; the first picked offset need not be the first one fetched.
	if state.lastCommitted < 0 {
		state.lastCommitted = offset.Offset - 1
		om.log.Infof("init partition %d lastCommitted to %d", offset.Partition, offset.Offset-1)
	}

	window := state.window
	i := sort.Search(
		len(window),
		func(j int) bool { return window[j].Offset >= offset.Offset },
	)
	if i < len(window) && window[i].Offset == offset.Offset {
		return nil // already inserted
	}
	om.partitionStates[offset.Partition].window = slices.Insert(window, i, offset)
	return nil
}

// InsertOffsetWithRetry inserts msg's commit offset, retrying until it
// succeeds or the context is canceled.
func (om *OffsetManager) InsertOffsetWithRetry(ctx context.Context, msg *kafka.Message) {
	for {
		err := om.InsertOffset(ctx, kafka.TopicPartition{
			Topic:     msg.TopicPartition.Topic,
			Partition: msg.TopicPartition.Partition,
			Offset:    msg.TopicPartition.Offset + 1,
		})
		if err == nil || ctx.Err() != nil {
			return
		}

		om.log.Error("retrying InsertOffset. err ", err)
		time.Sleep(200 * time.Millisecond)
	}
}

// RebalanceCb resets or initializes the per-partition offset states. It must
// be chained into the rebalance callback passed to Subscribe so the manager
// tracks exactly the partitions this consumer owns.
func (om *OffsetManager) RebalanceCb(consumer *kafka.Consumer, event kafka.Event) error {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	switch ev := event.(type) {
	case kafka.AssignedPartitions:
		// Rebalance events may carry kafka.OffsetInvalid when joining an
		// idle group, so fetch the committed offsets explicitly.
		var err error
		var committedOffsets []kafka.TopicPartition
		if om.dryRun {
			committedOffsets = ev.Partitions
		} else {
			committedOffsets, err = consumer.Committed(ev.Partitions, 5000)
		}
		if err != nil {
			return fmt.Errorf("failed to get committed offsets: %w", err)
		}

		logStr := make([]string, len(committedOffsets))
		for i, co := range committedOffsets {
			om.partitionStates[co.Partition] = &offsetState{
				window:        []kafka.TopicPartition{},
				lastCommitted: co.Offset,
			}

			// A stored offset below the topic's low watermark (retention has
			// moved on) is stale; invalidate it and let the first inserted
			// offset initialize the window.
			if !om.dryRun {
				low, _, err := om.consumer.QueryWatermarkOffsets(*(co.Topic), co.Partition, 5000)
				if err != nil {
					return fmt.Errorf("QueryWatermarkOffsets failed: %w", err)
				}

				if co.Offset < 0 || co.Offset < kafka.Offset(low) {
					om.partitionStates[co.Partition].lastCommitted = kafka.OffsetInvalid
				}
			}

			logStr[i] = fmt.Sprintf("(partition: %d, lastCommitted: %d)", co.Partition, om.partitionStates[co.Partition].lastCommitted)
		}

		om.log.Infof("rebalance event, adding partition states: %s", strings.Join(logStr, ","))
	case kafka.RevokedPartitions:
		logStr := make([]string, len(ev.Partitions))
		for i, partition := range ev.Partitions {
			logStr[i] = strconv.Itoa(int(partition.Partition))
			delete(om.partitionStates, partition.Partition)
		}
		om.log.Infof("rebalance event, removing state for partitions: %s", strings.Join(logStr, ","))
	default:
		om.log.Warnf("unknown rebalance event: %v", event)
	}
	return nil
}
