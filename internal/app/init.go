package app

import (
	"fmt"
	"strings"
)

// InitScript returns tmux configuration binding the backup commands under
// prefix + b. bin is the command used to call tmux-backup.
func InitScript(bin string) string {
	if strings.TrimSpace(bin) == "" {
		bin = "tmux-backup"
	}
	return fmt.Sprintf(`# tmux-backup key bindings
#
# prefix + b, then:
#   s  save the sessions and compact the catalog
#   r  restore the latest backup
#   l  list the backups
#   p  pick a backup to restore

bind-key b switch-client -T tmux-backup
bind-key -T tmux-backup s run-shell "%[1]s save --compact --to-tmux"
bind-key -T tmux-backup r run-shell "%[1]s restore --to-tmux"
bind-key -T tmux-backup l display-popup -E "%[1]s catalog list; read -r _"
bind-key -T tmux-backup p display-popup -E -w 90%% -h 80%% "%[1]s picker --to-tmux"
`, bin)
}
