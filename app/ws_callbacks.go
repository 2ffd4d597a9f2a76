package roomchat

import "log/slog"

func (app *App) onConnectionOpen(id int) {
	app.logger.Debug("connection opened", slog.Int("connection", id), slog.Int("open", app.wsManager.Len()))
}

func (app *App) onConnectionClose(id int) {
	app.logger.Debug("connection closed", slog.Int("connection", id), slog.Int("open", app.wsManager.Len()))
}
