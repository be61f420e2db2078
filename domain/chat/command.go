package chat

type Command interface {
	Room() RoomID
}

// PostMessageCommand is built from an inbound "message" envelope once the
// sender and room are known.
type PostMessageCommand struct {
	RoomID   RoomID
	SenderID UserID
	Content  string
}

func (p PostMessageCommand) Room() RoomID {
	return p.RoomID
}

// GetMessagesCommand asks for the most recent messages of a room.
type GetMessagesCommand struct {
	RoomID RoomID
	Limit  int
}

func (g GetMessagesCommand) Room() RoomID {
	return g.RoomID
}

// CreateRoomCommand carries the name of a room to create.
type CreateRoomCommand struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}
