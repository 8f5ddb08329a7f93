package envelope

import (
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"
)

// Topic names follow
// {World}.{Division}_{Capability}--{Role}__{Qualifier}@{Version}.events.
// The Bridge treats the full string as opaque on the wire but derives a
// routing key from its parts for handler dispatch.
type Topic struct {
	World      string
	Division   string
	Capability string
	Role       string
	Qualifier  string
	Version    string
}

var topicPattern = regexp.MustCompile(
	`^([A-Za-z0-9-]+)\.([A-Za-z0-9-]+)_([A-Za-z0-9-]+)--([A-Za-z0-9-]+)__([A-Za-z0-9-]+)@([A-Za-z0-9.-]+)\.events$`)

// ParseTopic validates and splits a topic name.
func ParseTopic(name string) (Topic, error) {
	m := topicPattern.FindStringSubmatch(name)
	if m == nil {
		return Topic{}, fmt.Errorf("topic %q does not match naming convention", name)
	}
	return Topic{
		World:      m[1],
		Division:   m[2],
		Capability: m[3],
		Role:       m[4],
		Qualifier:  m[5],
		Version:    m[6],
	}, nil
}

// String reassembles the canonical topic name.
func (t Topic) String() string {
	return fmt.Sprintf("%s.%s_%s--%s__%s@%s.events",
		t.World, t.Division, t.Capability, t.Role, t.Qualifier, t.Version)
}

// RoutingKey is the stable key the consumer runtime uses to bind handlers
// to a topic regardless of version bumps.
func (t Topic) RoutingKey() string {
	return strings.ToLower(fmt.Sprintf("%s.%s.%s", t.World, t.Capability, t.Qualifier))
}

// PartitionStream returns the broker stream key for one partition of a
// topic. Partition count is a deployment property of the topic.
func PartitionStream(topic string, partition int) string {
	return fmt.Sprintf("%s/p%d", topic, partition)
}

// PartitionFor maps a partition key (the correlation_id) onto one of n
// partitions. The mapping must stay stable across releases: envelopes in
// one causal chain always land on the same partition.
func PartitionFor(partitionKey string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(partitionKey)) % uint32(n))
}

// DLQTopic names the dead-letter topic for a source topic.
func DLQTopic(topic, suffix string) string {
	return topic + suffix
}
