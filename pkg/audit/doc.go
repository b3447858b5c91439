// Package audit records one event per submission outcome and forwards it to
// the configured sinks (structured log, Kafka). Events carry the submission
// id, the masked client email and the delivery result, never the record.
package audit
