// Consumer side of the reservation.events queue.  It stands in for the
// notification service: every lifecycle event is appended as one line to a
// log file.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultEventLogPath is used when no log path is configured.
const DefaultEventLogPath = "logs/reservation-events.log"

var logger = log.New("event-consumer")

// StartLifecycleConsumer connects to RabbitMQ at url, declares the
// reservation.events queue (durable) and consumes it forever, appending
// each event to logPath.  Connection failures are retried with
// exponential backoff capped at 30s.  Messages that cannot be decoded or
// written are rejected without requeue.  It never returns; run it in its own goroutine.
func StartLifecycleConsumer(url, logPath string) {
    if logPath == "" {
        logPath = DefaultEventLogPath
    }

    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            logger.Warnf("failed to dial broker: %v; retrying in %s", err, backoff)
            time.Sleep(backoff)
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(conn, logPath)
        _ = conn.Close()
        logger.Warnf("consume loop ended: %v; reconnecting", err)
        time.Sleep(2 * time.Second)
    }
}

func consumeLoop(conn *amqp.Connection, logPath string) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        logger.Warnf("set QoS failed: %v", err)
    }

    if _, err := ch.QueueDeclare(ReservationEventsQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(ReservationEventsQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := handleMessage(d.Body, logPath); err != nil {
            logger.Errorf("handle message failed: %v", err)
            _ = d.Nack(false, false)
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func handleMessage(body []byte, logPath string) error {
    var ev LifecycleEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" || ev.ReservationID == "" {
        return errors.New("event without type or reservation id")
    }

    if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", filepath.Dir(logPath), err)
    }
    f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatEvent(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatEvent(ev LifecycleEvent) string {
    return fmt.Sprintf("[%s] %s | event_id=%s | reservation_id=%s | user_id=%s | equipment_id=%s | status=%s | window=%s..%s | actor=%s\n",
        ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ID, ev.ReservationID, ev.UserID, ev.EquipmentID, ev.Status,
        ev.StartTime.UTC().Format(time.RFC3339), ev.EndTime.UTC().Format(time.RFC3339), ev.ActorID)
}
