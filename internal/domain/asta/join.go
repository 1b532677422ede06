package asta

// Join outcome messages surface to the client unchanged.
const (
	JoinMsgInvalidCode  = "Codice asta non valido"
	JoinMsgNotAvailable = "Asta piena o non più disponibile"
	JoinMsgNameTaken    = "Nome team già in uso"
	JoinMsgBusy         = "Iscrizione già in corso, riprova tra qualche secondo"
	JoinMsgSuccess      = "Iscrizione effettuata con successo"
)

// JoinRequest carries one attempt to enter an auction by invite code.
type JoinRequest struct {
	CodiceInvito string
	NomeTeam     string
	UserID       string
	UserEmail    string
}

// JoinResult is the structured outcome of a join attempt. Rejections are
// values, not errors: only infrastructure failures surface as errors.
type JoinResult struct {
	Success bool
	Message string
	Asta    *Asta
}
