// Package server carries the built-in single-page bridge UI served at the
// root route.
package server

// bridgePageHTML is the bridge console: join as a station, watch the crew
// roster, and push power distribution changes to every connected station.
const bridgePageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Starbridge Console</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #0b0e1a; color: #d0d6f0; }
        h1 { color: #7fd4ff; }
        fieldset { border: 1px solid #2a3150; margin: 10px 0; padding: 10px; }
        legend { color: #7fd4ff; }
        input[type="text"], select { padding: 5px; margin-right: 10px; background: #141a30; color: #d0d6f0; border: 1px solid #2a3150; }
        button { padding: 5px 15px; background-color: #1f6feb; color: white; border: none; cursor: pointer; }
        button:disabled { background-color: #2a3150; cursor: default; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #12331c; color: #7ce38b; }
        .disconnected { background-color: #3d1418; color: #ff7b82; }
        #crew li { margin: 3px 0; }
        .power-row { margin: 8px 0; }
        .power-row label { display: inline-block; width: 90px; }
        .power-row output { margin-left: 10px; }
        #log { border: 1px solid #2a3150; height: 160px; padding: 8px; overflow-y: scroll; background: #101527; font-size: 13px; }
    </style>
</head>
<body>
    <h1>Starbridge Console</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <fieldset>
        <legend>Join the bridge</legend>
        <select id="station">
            <option value="helm">Helm</option>
            <option value="engineering">Engineering</option>
            <option value="weapons">Weapons</option>
            <option value="science">Science</option>
        </select>
        <input type="text" id="name" placeholder="Your name" disabled>
        <button id="joinButton" onclick="join()" disabled>Join</button>
    </fieldset>

    <fieldset>
        <legend>Crew</legend>
        <ul id="crew"></ul>
    </fieldset>

    <fieldset>
        <legend>Power distribution</legend>
        <div class="power-row"><label for="shields">Shields</label><input type="range" id="shields" min="0" max="100" value="33"><output for="shields">33</output></div>
        <div class="power-row"><label for="weapons">Weapons</label><input type="range" id="weapons" min="0" max="100" value="33"><output for="weapons">33</output></div>
        <div class="power-row"><label for="engines">Engines</label><input type="range" id="engines" min="0" max="100" value="34"><output for="engines">34</output></div>
    </fieldset>

    <div id="log"></div>

    <script>
        let ws = null;
        let sessionId = null;
        const statusDiv = document.getElementById('status');
        const logDiv = document.getElementById('log');
        const crewList = document.getElementById('crew');
        const sliders = ['shields', 'weapons', 'engines'].map(id => document.getElementById(id));

        function log(message) {
            const line = document.createElement('div');
            line.textContent = message;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            document.getElementById('name').disabled = !connected;
            document.getElementById('joinButton').disabled = !connected;
        }

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function join() {
            send('join', {
                session_id: sessionId || '',
                station: document.getElementById('station').value,
                name: document.getElementById('name').value
            });
        }

        function renderCrew(users) {
            crewList.innerHTML = '';
            for (const [id, user] of Object.entries(users)) {
                const li = document.createElement('li');
                li.textContent = user.station + ' — ' + (user.name || '(unnamed)') + (id === sessionId ? ' (you)' : '');
                crewList.appendChild(li);
            }
        }

        function applyPower(levels) {
            for (const slider of sliders) {
                if (levels[slider.id] !== undefined) {
                    slider.value = levels[slider.id];
                    slider.nextElementSibling.value = levels[slider.id];
                }
            }
        }

        function sendPower() {
            const levels = {};
            for (const slider of sliders) {
                levels[slider.id] = Number(slider.value);
            }
            send('power_update', levels);
        }

        for (const slider of sliders) {
            slider.addEventListener('input', function() {
                this.nextElementSibling.value = this.value;
                sendPower();
            });
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws');

            ws.onopen = function() {
                log('Connected to the bridge');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                if (msg.event === 'joined') {
                    sessionId = msg.data.session_id;
                    log('Joined as session ' + sessionId);
                } else if (msg.event === 'update_users') {
                    renderCrew(msg.data);
                } else if (msg.event === 'power_update') {
                    applyPower(msg.data);
                } else if (msg.event === 'error') {
                    log('Error: ' + msg.data.reason);
                }
            };

            ws.onclose = function() {
                log('Connection closed, retrying in 2s');
                updateStatus(false);
                setTimeout(connect, 2000);
            };
        }

        connect();
    </script>
</body>
</html>`
