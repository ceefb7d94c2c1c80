package hub

import (
	"collaborative-whiteboard/internal/dto"
	"collaborative-whiteboard/internal/metrics"

	"github.com/sirupsen/logrus"
)

// fanout 负责编码出站事件并投递到连接的发送队列。
type fanout struct {
	table   *ConnectionTable
	metrics *metrics.Metrics
}

// sendTo 私发给单个连接
func (f *fanout) sendTo(conn ConnectionHandle, event string, data any) {
	message, err := dto.Encode(event, data)
	if err != nil {
		logrus.WithFields(logrus.Fields{"event": event, "conn_id": conn.ID()}).WithError(err).Error("Failed to encode outbound event")
		return
	}
	f.deliver(conn, event, message)
}

func (f *fanout) sendError(conn ConnectionHandle, message string) {
	f.sendTo(conn, dto.EventError, dto.ErrorPayload{Message: message})
}

// broadcast 发给房间内除 except 以外的所有连接。except 为空时包括所有人。
func (f *fanout) broadcast(roomID, except, event string, data any) {
	peers := f.table.Peers(roomID, except)
	if len(peers) == 0 {
		return
	}
	message, err := dto.Encode(event, data)
	if err != nil {
		logrus.WithFields(logrus.Fields{"event": event, "room_id": roomID}).WithError(err).Error("Failed to encode broadcast event")
		return
	}
	logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"event":           event,
		"recipient_count": len(peers),
	}).Debug("Broadcasting event")
	for _, peer := range peers {
		f.deliver(peer, event, message)
	}
}

// deliver 非阻塞投递，队列满时只丢弃该接收者的这条消息
func (f *fanout) deliver(conn ConnectionHandle, event string, message []byte) {
	if conn.Send(message) {
		f.metrics.RecordDelivery()
		return
	}
	f.metrics.RecordDroppedSend()
	logrus.WithFields(logrus.Fields{"conn_id": conn.ID(), "event": event}).Warn("Send queue full or closed, message dropped")
}
