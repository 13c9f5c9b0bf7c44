// internal/relay/events.go
package relay

// The relay is deliberately schema-agnostic: inbound payloads are relayed as
// opaque field sets, re-typed per the table below and stamped with a server
// timestamp. Only the few lifecycle events that must stay consistent with the
// room registry get interpreted at all.

// Inbound message types.
const (
	evJoinGame       = "join_game"
	evLeaveGame      = "leave_game"
	evPlayerState    = "player_state"
	evPlayerShoot    = "player_shoot"
	evPlayerHit      = "player_hit"
	evPlayerDied     = "player_died"
	evPlayerRespawn  = "player_respawn"
	evSendHazard     = "send_hazard"
	evGameEvent      = "game_event"
	evSpawnEnemy     = "spawn_enemy"
	evSpawnBoss      = "spawn_boss"
	evBossDamage     = "boss_damage"
	evBossDefeated   = "boss_defeated"
	evRoundEnd       = "round_end"
	evMatchEnd       = "match_end"
	evGameOver       = "game_over"
	evChatMessage    = "chat_message"
	evReadyStatus    = "ready_status"
	evStartCountdown = "start_countdown"
	evGameStarted    = "game_started"
)

// Outbound envelope types.
const (
	outConnected     = "connected"
	outJoinedGame    = "joined_game"
	outPlayerJoined  = "player_joined"
	outPlayerLeft    = "player_left"
	outGameUpdate    = "game_update"
	outReceiveHazard = "receive_hazard"
	outChat          = "chat"
	outRoomUpdate    = "room_update"
	outError         = "error"
)

// relayRule describes how one inbound gameplay event is fanned out.
type relayRule struct {
	// outType is the outbound envelope type; innerType, when non-empty, is
	// carried as the "event" field so clients can dispatch within game_update.
	outType   string
	innerType string
	// includeSender: hit confirmations, deaths, chat and lifecycle events echo
	// back to the sender; position/shot/hazard traffic does not (the sender
	// already rendered its own action).
	includeSender bool
}

// relayRules covers the plain pass-through events. join/leave/ready/start/end
// carry side effects and are handled explicitly in handleMessage. game_event
// deliberately has no inner type tag: its payload names the occurrence in its
// own "event" field, which must survive the relay untouched.
var relayRules = map[string]relayRule{
	evPlayerState:    {outType: outGameUpdate, innerType: "player_state"},
	evPlayerShoot:    {outType: outGameUpdate, innerType: "shoot"},
	evPlayerHit:      {outType: outGameUpdate, innerType: "hit", includeSender: true},
	evPlayerDied:     {outType: outGameUpdate, innerType: "died", includeSender: true},
	evPlayerRespawn:  {outType: outGameUpdate, innerType: "respawn", includeSender: true},
	evSendHazard:     {outType: outReceiveHazard},
	evGameEvent:      {outType: outGameUpdate},
	evSpawnEnemy:     {outType: outGameUpdate, innerType: "spawn_enemy"},
	evSpawnBoss:      {outType: outGameUpdate, innerType: "spawn_boss"},
	evBossDamage:     {outType: outGameUpdate, innerType: "boss_damage"},
	evBossDefeated:   {outType: outGameUpdate, innerType: "boss_defeated", includeSender: true},
	evRoundEnd:       {outType: outGameUpdate, innerType: "round_end", includeSender: true},
	evStartCountdown: {outType: outGameUpdate, innerType: "countdown", includeSender: true},
}
