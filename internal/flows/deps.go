package flows

// Deps groups flow dependency sets. The root engine builds this per call and
// delegates each operation to the matching flow.
type Deps struct {
	ValidateSession ValidateSessionDeps
	Link            LinkDeps
	RemoteLogin     RemoteLoginDeps
}
