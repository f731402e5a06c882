package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

const chatRoomColumns = "id, product_id, buyer_id, seller_id, created_at"

// CreateChatRoom inserts room and returns it with assigned id.
// ErrChatExists is returned when a room for (product, buyer) is already stored.
func (s *Store) CreateChatRoom(ctx context.Context, room ChatRoom) (ChatRoom, error) {
	s.logger.Debugf("Creating chat room for product (id: %d) and buyer (id: %d)", room.ProductID, room.BuyerID)

	sql := "insert into chat_rooms (product_id, buyer_id, seller_id, created_at) values ($1, $2, $3, $4) returning id"
	err := s.db.QueryRow(ctx, sql, room.ProductID, room.BuyerID, room.SellerID, room.CreatedAt).Scan(&room.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ChatRoom{}, ErrChatExists
			case pgerrcode.CheckViolation:
				return ChatRoom{}, ErrChatBadUsers
			case pgerrcode.ForeignKeyViolation:
				switch pgErr.ConstraintName {
				case "chat_rooms_product_id_fkey":
					return ChatRoom{}, ErrProductNotExist
				default:
					return ChatRoom{}, ErrUserNotExist
				}
			}
		}
		return ChatRoom{}, err
	}

	s.logger.Debugf("Created chat room with id %d", room.ID)

	return room, nil
}

// ChatRoomByKey returns the room identified by (product, buyer) dedup key
func (s *Store) ChatRoomByKey(ctx context.Context, product, buyer int64) (ChatRoom, error) {
	sql := "select " + chatRoomColumns + " from chat_rooms where product_id = $1 and buyer_id = $2"
	return s.queryChatRoom(ctx, sql, product, buyer)
}

// ChatRoomByID returns the room with provided id
func (s *Store) ChatRoomByID(ctx context.Context, id int64) (ChatRoom, error) {
	sql := "select " + chatRoomColumns + " from chat_rooms where id = $1"
	return s.queryChatRoom(ctx, sql, id)
}

// ChatRoomsByUser returns rooms where user is buyer or seller, newest first
func (s *Store) ChatRoomsByUser(ctx context.Context, user int64) ([]ChatRoom, error) {
	s.logger.Debugf("Retrieving chat rooms for user (id: %d)", user)

	sql := `select ` + chatRoomColumns + `
			  from chat_rooms
			 where buyer_id = $1
			    or seller_id = $1
			 order by created_at desc, id desc`

	rows, err := s.db.Query(ctx, sql, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]ChatRoom, 0)
	for rows.Next() {
		var r ChatRoom
		if err := rows.Scan(&r.ID, &r.ProductID, &r.BuyerID, &r.SellerID, &r.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d chat rooms", len(rooms))

	return rooms, nil
}

// CreateMessage appends message to its room and returns it with assigned id and created_at.
// Appends to one room are serialized by a row lock on the room and created_at never precedes
// the room's latest message, so (created_at, id) order is insertion order.
// A non-zero m.CreatedAt is used as a lower bound for the stored timestamp.
func (s *Store) CreateMessage(ctx context.Context, m Message) (Message, error) {
	s.logger.Debugf("Creating message from user (id: %d) in chat room (id: %d)", m.SenderID, m.ChatRoomID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	// error handling can be omitted for rollback according docs
	defer tx.Rollback(context.Background())

	var locked int
	err = tx.QueryRow(ctx, "select 1 from chat_rooms where id = $1 for update", m.ChatRoomID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageBadChat
		}
		return Message{}, err
	}

	lowerBound := pgtype.Timestamptz{Status: pgtype.Null}
	if !m.CreatedAt.IsZero() {
		lowerBound = pgtype.Timestamptz{Time: m.CreatedAt, Status: pgtype.Present}
	}

	sql := `insert into messages (chat_room_id, sender_id, content, created_at)
			values ($1, $2, $3, greatest($4::timestamptz, clock_timestamp(),
				(select max(created_at) from messages where chat_room_id = $1)))
			returning id, created_at`
	err = tx.QueryRow(ctx, sql, m.ChatRoomID, m.SenderID, m.Content, lowerBound).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				switch pgErr.ConstraintName {
				case "messages_chat_room_id_fkey":
					return Message{}, ErrMessageBadChat
				case "messages_sender_id_fkey":
					return Message{}, ErrMessageBadAuthor
				default:
					return Message{}, err
				}
			}
		}
		return Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return m, nil
}

// MessagesByChatRoom returns all room messages sorted by (created_at, id) from earliest to latest
func (s *Store) MessagesByChatRoom(ctx context.Context, room int64) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for chat room (id: %d)", room)

	sql := `select id, chat_room_id, sender_id, content, created_at
			  from messages
			 where chat_room_id = $1
			 order by created_at asc, id asc`

	rows, err := s.db.Query(ctx, sql, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.ChatRoomID, &m.SenderID, &m.Content, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// LastMessage returns the latest message of the room by (created_at, id)
func (s *Store) LastMessage(ctx context.Context, room int64) (Message, error) {
	sql := `select id, chat_room_id, sender_id, content, created_at
			  from messages
			 where chat_room_id = $1
			 order by created_at desc, id desc
			 limit 1`

	var m Message
	err := s.db.QueryRow(ctx, sql, room).Scan(&m.ID, &m.ChatRoomID, &m.SenderID, &m.Content, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrChatHasNoMessages
		}
		return Message{}, err
	}
	return m, nil
}

func (s *Store) queryChatRoom(ctx context.Context, sql string, args ...interface{}) (ChatRoom, error) {
	var r ChatRoom
	err := s.db.QueryRow(ctx, sql, args...).Scan(&r.ID, &r.ProductID, &r.BuyerID, &r.SellerID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatRoom{}, ErrChatNotExist
		}
		return ChatRoom{}, err
	}
	return r, nil
}
